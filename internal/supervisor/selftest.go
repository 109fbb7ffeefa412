package supervisor

import (
	"context"
	"errors"
	"net/http"

	"github.com/cenkalti/backoff/v3"
	"github.com/taskcluster/httpbackoff/v3"

	"localpub/internal/constants"
)

// selfTest fetches the public URL once the tunnel is up. It only logs; a
// relay can take a moment before it routes traffic.
func (s *Supervisor) selfTest(ctx context.Context, publicURL string) {
	s.log.Debug("🧪 Testing tunnel connection...")

	settings := backoff.NewExponentialBackOff()
	settings.MaxElapsedTime = s.opts.SelfTestMaxElapsed
	retry := &httpbackoff.Client{BackOffSettings: settings}

	resp, attempts, err := retry.Retry(func() (*http.Response, error, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, publicURL, nil)
		if err != nil {
			return nil, nil, err
		}
		// Skips the localtunnel click-through page.
		req.Header.Set("Bypass-Tunnel-Reminder", "true")

		resp, err := s.opts.SelfTestClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			return resp, err, nil
		}
		return resp, nil, nil
	})
	if ctx.Err() != nil {
		return
	}

	var bad httpbackoff.BadHttpResponseCode
	switch {
	case err == nil:
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			s.log.Info("✅ Tunnel is working correctly")
		} else {
			s.log.Warnf("⚠️  Tunnel responding with status: %d", resp.StatusCode)
		}
	case errors.As(err, &bad):
		s.log.Warnf("⚠️  Tunnel responding with status: %d", bad.HttpResponseCode)
	default:
		s.log.WithError(err).WithField("attempts", attempts).Warn("⚠️  Could not verify tunnel (but it might still work)")
	}
}

func newSelfTestClient() *http.Client {
	return &http.Client{Timeout: constants.SelfTestTimeout}
}
