package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/speechstudio/pkg/provider/speech"
)

// VoicesCheck reports a provider as ready when it advertises at least one
// voice. The studio cannot build a request without one.
func VoicesCheck(name string, p speech.Provider) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if p == nil {
				return errors.New("no provider configured")
			}
			if len(p.Voices()) == 0 {
				return fmt.Errorf("provider advertises no voices")
			}
			return nil
		},
	}
}

// OpenCheck fails once closed reports true, e.g. after the audio output has
// been shut down.
func OpenCheck(name string, closed func() bool) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if closed() {
				return errors.New("closed")
			}
			return nil
		},
	}
}
