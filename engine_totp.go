package boxumco

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// BeginEnrollment starts (or restarts) TOTP enrollment for userID and returns
// the secret and provisioning URI to show the user.
//
// An existing unconfirmed device is reused, so repeated or concurrent calls
// converge on one secret. A user whose device is already confirmed gets
// ErrSecondFactorAlreadyEnabled and must disable it first.
func (e *Engine) BeginEnrollment(ctx context.Context, userID string) (*TOTPEnrollment, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	u, err := e.lookupByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	fresh, err := e.totp.generateSecret()
	if err != nil {
		return nil, err
	}
	device, err := e.devices.GetOrCreateUnconfirmed(ctx, u.ID, fresh)
	if err != nil {
		return nil, fmt.Errorf("create device: %w", err)
	}
	if device.Confirmed {
		return nil, ErrSecondFactorAlreadyEnabled
	}

	enrollment := &TOTPEnrollment{
		Secret:          encodeSecret(device.Secret),
		ProvisioningURI: e.totp.provisioningURI(device.Secret, u.Email),
	}
	if e.qr != nil {
		img, err := e.qr.Render(enrollment.ProvisioningURI)
		if err != nil {
			return nil, fmt.Errorf("render qr: %w", err)
		}
		enrollment.QRImage = img
	}

	e.metricInc(MetricTOTPEnrollmentStarted)
	e.emitAudit(ctx, auditEventTOTPEnrollmentStarted, true, auditUser(u), nil, nil)
	return enrollment, nil
}

// ConfirmEnrollment promotes the user's unconfirmed device once code matches
// the current time step (±Skew). A wrong code leaves the device unconfirmed.
// Confirming an already confirmed device with a valid code succeeds without
// changing anything.
func (e *Engine) ConfirmEnrollment(ctx context.Context, userID, code string) error {
	if err := e.ready(); err != nil {
		return err
	}

	device, err := e.devices.GetDevice(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return ErrEnrollmentNotStarted
		}
		return fmt.Errorf("load device: %w", err)
	}

	ok, counter, err := e.totp.verify(device.Secret, code, e.now())
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricTOTPEnrollmentFailure)
		e.emitAudit(ctx, auditEventTOTPFailure, false, auditID(userID), ErrInvalidCode, func() map[string]string {
			return map[string]string{"stage": "enrollment"}
		})
		return ErrInvalidCode
	}
	if device.Confirmed {
		return nil
	}

	transitioned, err := e.devices.ConfirmDevice(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return ErrEnrollmentNotStarted
		}
		return fmt.Errorf("confirm device: %w", err)
	}
	if !transitioned {
		return nil
	}
	if e.config.TOTP.EnforceReplayProtection {
		e.recordCounter(ctx, userID, counter)
	}

	e.metricInc(MetricTOTPEnrollmentConfirmed)
	e.emitAudit(ctx, auditEventTOTPEnabled, true, auditID(userID), nil, nil)
	return nil
}

// VerifySecondFactor reports whether code matches the user's confirmed
// device. Users without a confirmed device always get false.
func (e *Engine) VerifySecondFactor(ctx context.Context, userID, code string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}

	device, err := e.devices.GetDevice(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load device: %w", err)
	}
	if !device.Confirmed {
		return false, nil
	}

	ok, counter, err := e.totp.verify(device.Secret, code, e.now())
	if err != nil || !ok {
		return false, err
	}

	if e.config.TOTP.EnforceReplayProtection {
		if counter <= device.LastUsedCounter {
			e.metricInc(MetricTOTPReplayRejected)
			return false, nil
		}
		e.recordCounter(ctx, userID, counter)
	}
	return true, nil
}

// DisableSecondFactor deletes the user's confirmed device. It does not ask
// for the password or a current code; callers wanting step-up authentication
// must do it before calling.
func (e *Engine) DisableSecondFactor(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	// An enrollment still waiting for its first code is left alone.
	deleted, err := e.devices.DeleteConfirmedDevice(ctx, userID)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	if !deleted {
		return ErrNoActiveDevice
	}

	e.metricInc(MetricTOTPDisabled)
	e.emitAudit(ctx, auditEventTOTPDisabled, true, auditID(userID), nil, nil)
	return nil
}

// HasSecondFactor reports whether the user has a confirmed device.
func (e *Engine) HasSecondFactor(ctx context.Context, userID string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}

	device, err := e.devices.GetDevice(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load device: %w", err)
	}
	return device.Confirmed, nil
}

func (e *Engine) recordCounter(ctx context.Context, userID string, counter int64) {
	if err := e.devices.UpdateLastUsedCounter(ctx, userID, counter); err != nil {
		e.logger.Warn("totp counter update failed", zap.String("user_id", userID), zap.Error(err))
	}
}
