package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()

	r.ObserveSolve("cpu", nil, 1500, time.Millisecond, 2*time.Millisecond)
	r.ObserveSolve("cpu", errors.New("cancelled"), 10, 0, 0)
	r.ObserveValidation("cpu", true, time.Millisecond)
	r.SetTableBytes("cpu", 1<<20)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.solves.WithLabelValues("cpu", "solved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.solves.WithLabelValues("cpu", "failed")))
	assert.Equal(t, 1510.0, testutil.ToFloat64(r.attempts.WithLabelValues("cpu")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.validations.WithLabelValues("cpu", "valid")))
	assert.Equal(t, float64(1<<20), testutil.ToFloat64(r.tableBytes.WithLabelValues("cpu")))
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveSolve("cpu", nil, 1, 0, 0)
		r.ObserveValidation("cpu", false, 0)
		r.SetTableBytes("cpu", 4)
	})
	assert.Nil(t, r.Registry())
}
