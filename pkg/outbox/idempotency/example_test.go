package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func ExampleManager_Once() {
	ctx := context.Background()
	manager, _ := NewManager(newFakeStore(), 7*24*time.Hour)
	eventID := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	for i := 0; i < 2; i++ {
		ran, _ := manager.Once(ctx, "notifications-worker", eventID, func(context.Context) error {
			fmt.Println("storing notifications")
			return nil
		})
		if !ran {
			fmt.Println("duplicate delivery ignored")
		}
	}
	// Output:
	// storing notifications
	// duplicate delivery ignored
}
