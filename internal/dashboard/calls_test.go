package dashboard

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dinedesk/internal/infra/realtime"
	"dinedesk/internal/stories/waitercalls"
)

type fakeCallSource struct {
	mu   sync.Mutex
	list []*waitercalls.Call
}

func (f *fakeCallSource) ListWaiterCalls(context.Context) ([]*waitercalls.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*waitercalls.Call, 0, len(f.list))
	for _, c := range f.list {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

type callRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *callRecorder) OnWaiterCall(call *waitercalls.Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, call.ID)
}

func (r *callRecorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func callEnvelope(action realtime.Action, c *waitercalls.Call) realtime.Envelope {
	data, _ := json.Marshal(c)
	return realtime.Envelope{Channel: realtime.ChannelWaiterCalls, Action: action, RestaurantID: c.RestaurantID, Record: data}
}

func TestCallsLifecycle(t *testing.T) {
	src := &fakeCallSource{list: []*waitercalls.Call{
		{ID: "c1", RestaurantID: "r1", TableNumber: "4", Status: waitercalls.StatusOpen, CreatedAt: t0},
	}}
	rec := &callRecorder{}
	c := NewCalls("r1", src, rec, discard())

	c.refresh(context.Background())
	assert.Empty(t, rec.got(), "calls present at startup are not announced")

	c2 := &waitercalls.Call{ID: "c2", RestaurantID: "r1", TableNumber: "7", Status: waitercalls.StatusOpen, CreatedAt: t0.Add(time.Minute)}
	c.apply(callEnvelope(realtime.ActionInsert, c2))
	c.apply(callEnvelope(realtime.ActionInsert, &waitercalls.Call{ID: "x", RestaurantID: "r2", Status: waitercalls.StatusOpen}))

	assert.Equal(t, []string{"c2"}, rec.got())
	open := c.Open()
	require.Len(t, open, 2)
	assert.Equal(t, "c1", open[0].ID)

	done := *c2
	done.Status = waitercalls.StatusCompleted
	c.apply(callEnvelope(realtime.ActionUpdate, &done))
	assert.Len(t, c.Open(), 1)

	// A call raised while the feed was down is announced by the next refresh
	src.mu.Lock()
	src.list = append(src.list, &waitercalls.Call{ID: "c3", RestaurantID: "r1", Status: waitercalls.StatusOpen, CreatedAt: t0.Add(2 * time.Minute)})
	src.mu.Unlock()
	c.refresh(context.Background())
	assert.Equal(t, []string{"c2", "c3"}, rec.got())
}
