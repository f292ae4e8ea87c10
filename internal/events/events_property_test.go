package events_test

import (
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/torosent/walwatch/internal/events"
)

// TestProperty_DeliveryOrder checks that messages sent in arbitrary batches
// come out exactly once and in send order.
func TestProperty_DeliveryOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("every message is received once in send order", prop.ForAll(
		func(batches []int) bool {
			tx, rx := events.New()
			var got []events.Message
			next := 0
			for _, n := range batches {
				for j := 0; j < n; j++ {
					if err := tx.Event(strconv.Itoa(next)); err != nil {
						return false
					}
					next++
				}
				got = append(got, rx.TryReceiveAll()...)
			}
			if len(got) != next {
				return false
			}
			for i, msg := range got {
				if msg.Kind != events.MessageEvent || msg.Event.Label != strconv.Itoa(i) {
					return false
				}
			}
			return rx.TryReceiveAll() == nil
		},
		gen.SliceOf(gen.IntRange(0, 20)),
	))

	properties.TestingRun(t)
}
