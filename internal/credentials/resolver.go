// Package credentials resolves merchant-scoped configuration from the flat
// settings store, falling back to global rows and then to process defaults.
package credentials

import (
	"context"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"pix-gateway/internal/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var ErrNotConfigured = errors.New("not configured")

const defaultTimezone = "America/Sao_Paulo"

type Source string

const (
	SourceNone     Source = ""
	SourceMerchant Source = "merchant"
	SourceGlobal   Source = "global"
	SourceFallback Source = "fallback"
)

type Store interface {
	Get(ctx context.Context, key string, merchantID *uuid.UUID) (string, bool, error)
}

type Value struct {
	Value  string
	Source Source
}

func (v Value) Configured() bool {
	return v.Source != SourceNone
}

type Resolver struct {
	store    Store
	fallback map[string]string
}

func NewResolver(store Store, fallback map[string]string) *Resolver {
	if fallback == nil {
		fallback = map[string]string{}
	}
	return &Resolver{store: store, fallback: fallback}
}

// Lookup never fails for absence: an unconfigured key yields a Value with
// SourceNone. Errors are reserved for store failures.
func (r *Resolver) Lookup(ctx context.Context, key string, merchantID *uuid.UUID) (Value, error) {
	if merchantID != nil {
		value, ok, err := r.store.Get(ctx, key, merchantID)
		if err != nil {
			return Value{}, err
		}
		if ok && strings.TrimSpace(value) != "" {
			return Value{Value: strings.TrimSpace(value), Source: SourceMerchant}, nil
		}
	}

	value, ok, err := r.store.Get(ctx, key, nil)
	if err != nil {
		return Value{}, err
	}
	if ok && strings.TrimSpace(value) != "" {
		return Value{Value: strings.TrimSpace(value), Source: SourceGlobal}, nil
	}

	if value, ok := r.fallback[key]; ok && value != "" {
		return Value{Value: value, Source: SourceFallback}, nil
	}
	return Value{}, nil
}

// Require is Lookup for callers that cannot proceed without the value.
func (r *Resolver) Require(ctx context.Context, key string, merchantID *uuid.UUID) (string, error) {
	value, err := r.Lookup(ctx, key, merchantID)
	if err != nil {
		return "", err
	}
	if !value.Configured() {
		return "", errors.Wrap(ErrNotConfigured, key)
	}
	return value.Value, nil
}

// Acquirer returns the acquirer selected for the merchant. ok is false when
// nothing is configured at any level.
func (r *Resolver) Acquirer(ctx context.Context, merchantID *uuid.UUID) (model.Acquirer, bool, error) {
	value, err := r.Lookup(ctx, model.SettingAcquirer, merchantID)
	if err != nil || !value.Configured() {
		return "", false, err
	}

	acquirer, ok := model.ParseAcquirer(strings.ToLower(value.Value))
	if !ok {
		return "", false, errors.Errorf("setting %s: unknown acquirer %q", model.SettingAcquirer, value.Value)
	}
	return acquirer, true, nil
}

// FeeSchedule resolves percentage and fixed fee independently; a missing
// component is zero.
func (r *Resolver) FeeSchedule(ctx context.Context, merchantID *uuid.UUID) (model.FeeSchedule, error) {
	var schedule model.FeeSchedule

	percentage, err := r.Lookup(ctx, model.SettingFeePercentage, merchantID)
	if err != nil {
		return schedule, err
	}
	if percentage.Configured() {
		value, err := decimal.NewFromString(strings.ReplaceAll(percentage.Value, ",", "."))
		if err != nil || value.IsNegative() {
			return schedule, errors.Errorf("setting %s: invalid percentage %q", model.SettingFeePercentage, percentage.Value)
		}
		schedule.Percentage = value
	}

	fixed, err := r.Lookup(ctx, model.SettingFeeFixed, merchantID)
	if err != nil {
		return schedule, err
	}
	if fixed.Configured() {
		value, err := strconv.ParseInt(fixed.Value, 10, 64)
		if err != nil || value < 0 {
			return schedule, errors.Errorf("setting %s: invalid fixed fee %q", model.SettingFeeFixed, fixed.Value)
		}
		schedule.Fixed = value
	}

	return schedule, nil
}

// Location returns the merchant's reporting timezone.
func (r *Resolver) Location(ctx context.Context, merchantID *uuid.UUID) (*time.Location, error) {
	value, err := r.Lookup(ctx, model.SettingReportTimezone, merchantID)
	if err != nil {
		return nil, err
	}

	name := defaultTimezone
	if value.Configured() {
		name = value.Value
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.Wrapf(err, "setting %s", model.SettingReportTimezone)
	}
	return loc, nil
}
