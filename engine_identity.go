package phoneauth

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/phoneauth/directory"
)

// UpdateProfile applies update to the identity and returns the stored
// result. An email already used by another identity yields ErrConflict.
func (e *Engine) UpdateProfile(ctx context.Context, identityID string, update ProfileUpdate) (*Identity, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if identityID == "" {
		return nil, ErrValidation
	}
	if update.DisplayName != nil {
		name := strings.TrimSpace(*update.DisplayName)
		if len(name) > maxDisplayNameBytes {
			return nil, ErrValidation
		}
		update.DisplayName = &name
	}
	if update.Email != nil {
		email := directory.NormalizeEmail(*update.Email)
		if email != "" && !directory.ValidEmail(email) {
			return nil, ErrValidation
		}
		update.Email = &email
	}

	identity, err := e.directory.Store().UpdateProfile(ctx, identityID, update, e.now().UTC())
	if err != nil {
		return nil, e.mapDirectoryError(err)
	}

	e.emitAudit(ctx, auditEventProfileUpdated, true, identity.ID, identity.Phone, "", nil, func() map[string]string {
		fields := make([]string, 0, 3)
		if update.DisplayName != nil {
			fields = append(fields, "display_name")
		}
		if update.Email != nil {
			fields = append(fields, "email")
		}
		if update.ShippingAddress != nil {
			fields = append(fields, "shipping_address")
		}
		return map[string]string{
			"fields": strings.Join(fields, ","),
		}
	})
	return redact(identity), nil
}

// Stats aggregates activity since the given time. Counts are bounded by
// the retention windows: older challenges and attempts have been purged.
func (e *Engine) Stats(ctx context.Context, since time.Time) (Stats, error) {
	if !e.ready() {
		return Stats{}, ErrEngineNotReady
	}
	stats := Stats{Since: since}

	issued, err := e.challenges.CountIssued(ctx, since)
	if err != nil {
		e.logger.Error().Err(err).Msg("challenge count failed")
		return Stats{}, ErrUnavailable
	}
	stats.ChallengesIssued = issued

	tally, err := e.guard.Tally(ctx, since)
	if err != nil {
		e.logger.Error().Err(err).Msg("attempt tally failed")
		return Stats{}, ErrUnavailable
	}
	stats.SuccessfulLogins = tally.Succeeded
	stats.FailedLogins = tally.Failed
	if total := tally.Succeeded + tally.Failed; total > 0 {
		stats.SuccessRate = float64(tally.Succeeded) / float64(total) * 100
	}

	created, err := e.directory.Store().CountCreatedSince(ctx, since)
	if err != nil {
		return Stats{}, e.mapDirectoryError(err)
	}
	stats.NewIdentities = created
	return stats, nil
}

// PurgeExpired removes challenges older than Retention.ChallengeRetention
// and attempt records older than Retention.AttemptRetention, measured from
// now. It is safe to run concurrently with live traffic.
func (e *Engine) PurgeExpired(ctx context.Context, now time.Time) (PurgeReport, error) {
	if !e.ready() {
		return PurgeReport{}, ErrEngineNotReady
	}
	var report PurgeReport

	challenges, err := e.challenges.Purge(ctx, now.Add(-e.config.Retention.ChallengeRetention))
	report.Challenges = challenges
	e.metrics.Add(MetricPurgedChallenges, uint64(challenges))
	if err != nil {
		e.logger.Error().Err(err).Int("purged", challenges).Msg("challenge purge failed")
		return report, ErrUnavailable
	}

	attempts, err := e.guard.PurgeBefore(ctx, now.Add(-e.config.Retention.AttemptRetention))
	report.Attempts = attempts
	if attempts > 0 {
		e.metrics.Add(MetricPurgedAttempts, uint64(attempts))
	}
	if err != nil {
		e.logger.Error().Err(err).Int64("purged", attempts).Msg("attempt purge failed")
		return report, ErrUnavailable
	}
	return report, nil
}
