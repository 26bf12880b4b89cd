package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/tasks", "200"))

	RecordAPIRequest("GET", "/tasks", 200, 15*time.Millisecond)
	RecordAPIRequest("GET", "/tasks", 200, 5*time.Millisecond)

	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/tasks", "200"))
	assert.Equal(t, before+2, after)
}

func TestUpdateRoomGauges(t *testing.T) {
	UpdateRoomGauges(7, 3)
	assert.Equal(t, float64(7), testutil.ToFloat64(WSConnectionsActive))
	assert.Equal(t, float64(3), testutil.ToFloat64(WSRoomsActive))

	UpdateRoomGauges(0, 0)
	assert.Equal(t, float64(0), testutil.ToFloat64(WSConnectionsActive))
}
