package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rentease/rentledger/internal/paymentintent/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, intent *domain.PaymentIntent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_intents (
			id, tenant_id, landlord_id, bill_id, amount, phone_number,
			provider, provider_ref, status, result_message, callback_payload,
			created_at, expires_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		intent.ID,
		intent.TenantID,
		intent.LandlordID,
		intent.BillID,
		intent.Amount,
		intent.PhoneNumber,
		intent.Provider,
		intent.ProviderRef,
		intent.Status,
		intent.ResultMessage,
		intent.CallbackPayload,
		intent.CreatedAt,
		intent.ExpiresAt,
		intent.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, intentID snowflake.ID) (*domain.PaymentIntent, error) {
	if intentID == 0 {
		return nil, nil
	}
	var item domain.PaymentIntent
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, landlord_id, bill_id, amount, phone_number,
			provider, provider_ref, status, result_message, callback_payload,
			created_at, expires_at, updated_at
		 FROM payment_intents
		 WHERE id = ?
		 LIMIT 1`,
		intentID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByProviderRef(ctx context.Context, db *gorm.DB, provider, providerRef string) (*domain.PaymentIntent, error) {
	if providerRef == "" {
		return nil, nil
	}
	var item domain.PaymentIntent
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, landlord_id, bill_id, amount, phone_number,
			provider, provider_ref, status, result_message, callback_payload,
			created_at, expires_at, updated_at
		 FROM payment_intents
		 WHERE provider = ? AND provider_ref = ?
		 LIMIT 1`,
		provider,
		providerRef,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindLandlordAccount(ctx context.Context, db *gorm.DB, landlordID snowflake.ID) (*domain.LandlordAccount, error) {
	if landlordID == 0 {
		return nil, nil
	}
	var item domain.LandlordAccount
	err := db.WithContext(ctx).Raw(
		`SELECT landlord_id, provider, short_code, account_name, created_at, updated_at
		 FROM landlord_accounts
		 WHERE landlord_id = ?
		 LIMIT 1`,
		landlordID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.LandlordID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkSent(ctx context.Context, db *gorm.DB, intentID snowflake.ID, providerRef string, next domain.IntentStatus, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_intents
		 SET status = ?, provider_ref = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		next,
		providerRef,
		now,
		intentID,
		domain.IntentStatusCreated,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkTerminal(ctx context.Context, db *gorm.DB, intentID snowflake.ID, status domain.IntentStatus, resultMessage *string, payload []byte, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_intents
		 SET status = ?, result_message = ?, callback_payload = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?, ?)`,
		status,
		resultMessage,
		payload,
		now,
		intentID,
		domain.IntentStatusCreated,
		domain.IntentStatusSent,
		domain.IntentStatusWaiting,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ExpireBatch(ctx context.Context, db *gorm.DB, now time.Time, batchSize int) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_intents
		 SET status = ?, updated_at = ?
		 WHERE id IN (
			SELECT id FROM payment_intents
			WHERE status IN (?, ?) AND expires_at < ?
			ORDER BY expires_at
			LIMIT ?
		 )`,
		domain.IntentStatusExpired,
		now,
		domain.IntentStatusSent,
		domain.IntentStatusWaiting,
		now,
		batchSize,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
