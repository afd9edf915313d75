package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDuplicatePair is returned when a proposal for the same ordered
	// (sender ad, receiver ad) pair already exists, regardless of status.
	ErrDuplicatePair = errors.New("duplicate proposal pair")
	// ErrNotFound is returned when the referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when a status mutation targets a
	// proposal that is no longer pending.
	ErrInvalidTransition = errors.New("invalid status transition")
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- users ---

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash)
	if isUniqueViolation(err) {
		return fmt.Errorf("email already registered: %w", err)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at
		FROM users WHERE email=$1
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at
		FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// --- refresh sessions and token revocation ---

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	const query = `
		SELECT user_id
		FROM refresh_sessions
		WHERE token_hash = $1
			AND revoked_at IS NULL
			AND expires_at > NOW()
	`
	var userID string
	if err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&userID); err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// --- ads ---

func (s *PostgresStore) InsertAd(ctx context.Context, ad Ad) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ads (id, owner_id, title, description, image_url, category, condition)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ad.ID, ad.OwnerID, ad.Title, ad.Description, ad.ImageURL, ad.Category, ad.Condition)
	if err != nil {
		return fmt.Errorf("insert ad: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAd(ctx context.Context, adID string) (Ad, error) {
	var ad Ad
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.owner_id, a.title, a.description, a.image_url, a.category, a.condition, a.created_at, u.display_name
		FROM ads a
		JOIN users u ON u.id = a.owner_id
		WHERE a.id=$1
	`, adID).Scan(&ad.ID, &ad.OwnerID, &ad.Title, &ad.Description, &ad.ImageURL, &ad.Category, &ad.Condition, &ad.CreatedAt, &ad.OwnerName)
	if errors.Is(err, sql.ErrNoRows) {
		return Ad{}, ErrNotFound
	}
	if err != nil {
		return Ad{}, fmt.Errorf("get ad: %w", err)
	}
	return ad, nil
}

func (s *PostgresStore) UpdateAd(ctx context.Context, ad Ad) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE ads
		SET title=$2, description=$3, image_url=$4, category=$5, condition=$6
		WHERE id=$1
	`, ad.ID, ad.Title, ad.Description, ad.ImageURL, ad.Category, ad.Condition)
	if err != nil {
		return fmt.Errorf("update ad: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteAd(ctx context.Context, adID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM ads WHERE id=$1`, adID)
	if err != nil {
		return fmt.Errorf("delete ad: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListAds(ctx context.Context, category, condition string) ([]Ad, error) {
	const query = `
		SELECT a.id, a.owner_id, a.title, a.description, a.image_url, a.category, a.condition, a.created_at, u.display_name
		FROM ads a
		JOIN users u ON u.id = a.owner_id
		WHERE ($1 = '' OR a.category = $1)
			AND ($2 = '' OR a.condition = $2)
		ORDER BY a.created_at DESC, a.id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, category, condition)
	if err != nil {
		return nil, fmt.Errorf("list ads: %w", err)
	}
	defer rows.Close()
	return scanAds(rows)
}

func (s *PostgresStore) ListAdsByOwner(ctx context.Context, ownerID string) ([]Ad, error) {
	const query = `
		SELECT a.id, a.owner_id, a.title, a.description, a.image_url, a.category, a.condition, a.created_at, u.display_name
		FROM ads a
		JOIN users u ON u.id = a.owner_id
		WHERE a.owner_id = $1
		ORDER BY a.created_at DESC, a.id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list ads by owner: %w", err)
	}
	defer rows.Close()
	return scanAds(rows)
}

func scanAds(rows *sql.Rows) ([]Ad, error) {
	items := make([]Ad, 0)
	for rows.Next() {
		var ad Ad
		if err := rows.Scan(&ad.ID, &ad.OwnerID, &ad.Title, &ad.Description, &ad.ImageURL, &ad.Category, &ad.Condition, &ad.CreatedAt, &ad.OwnerName); err != nil {
			return nil, fmt.Errorf("scan ad: %w", err)
		}
		items = append(items, ad)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ads: %w", err)
	}
	return items, nil
}

// --- proposals ---

func (s *PostgresStore) ProposalPairExists(ctx context.Context, senderAdID, receiverAdID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM exchange_proposals WHERE sender_ad_id=$1 AND receiver_ad_id=$2)
	`, senderAdID, receiverAdID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check proposal pair: %w", err)
	}
	return exists, nil
}

// InsertProposal relies on the unique index over (sender_ad_id,
// receiver_ad_id) rather than a check-then-insert, so two concurrent
// inserts for the same ordered pair cannot both succeed.
func (s *PostgresStore) InsertProposal(ctx context.Context, proposal Proposal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchange_proposals (id, sender_ad_id, receiver_ad_id, comment, status)
		VALUES ($1, $2, $3, $4, $5)
	`, proposal.ID, proposal.SenderAdID, proposal.ReceiverAdID, proposal.Comment, proposal.Status)
	if isUniqueViolation(err) {
		return ErrDuplicatePair
	}
	if err != nil {
		return fmt.Errorf("insert proposal: %w", err)
	}
	return nil
}

const proposalColumns = `
	p.id, p.sender_ad_id, p.receiver_ad_id, p.comment, p.status, p.created_at,
	sa.owner_id, ra.owner_id, sa.title, ra.title
`

func (s *PostgresStore) GetProposal(ctx context.Context, proposalID string) (Proposal, error) {
	query := `
		SELECT ` + proposalColumns + `
		FROM exchange_proposals p
		JOIN ads sa ON sa.id = p.sender_ad_id
		JOIN ads ra ON ra.id = p.receiver_ad_id
		WHERE p.id=$1
	`
	var item Proposal
	err := s.db.QueryRowContext(ctx, query, proposalID).Scan(
		&item.ID,
		&item.SenderAdID,
		&item.ReceiverAdID,
		&item.Comment,
		&item.Status,
		&item.CreatedAt,
		&item.SenderOwnerID,
		&item.ReceiverOwnerID,
		&item.SenderAdTitle,
		&item.ReceiverAdTitle,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Proposal{}, ErrNotFound
	}
	if err != nil {
		return Proposal{}, fmt.Errorf("get proposal: %w", err)
	}
	return item, nil
}

// UpdateProposalStatus performs the pending-to-terminal transition as a
// single conditional update. Of two concurrent transitions on the same
// proposal exactly one sees a row affected; the loser gets
// ErrInvalidTransition.
func (s *PostgresStore) UpdateProposalStatus(ctx context.Context, proposalID, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE exchange_proposals
		SET status=$2
		WHERE id=$1 AND status='pending'
	`, proposalID, status)
	if err != nil {
		return fmt.Errorf("update proposal status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM exchange_proposals WHERE id=$1)`, proposalID).Scan(&exists); err != nil {
		return fmt.Errorf("check proposal: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInvalidTransition
}

func (s *PostgresStore) ListProposals(ctx context.Context, direction, userID, status string) ([]Proposal, error) {
	side := "sa.owner_id"
	if direction == DirectionReceived {
		side = "ra.owner_id"
	}
	query := `
		SELECT ` + proposalColumns + `
		FROM exchange_proposals p
		JOIN ads sa ON sa.id = p.sender_ad_id
		JOIN ads ra ON ra.id = p.receiver_ad_id
		WHERE ` + side + ` = $1
			AND ($2 = '' OR p.status = $2)
		ORDER BY p.created_at DESC, p.id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, status)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	items := make([]Proposal, 0)
	for rows.Next() {
		var item Proposal
		if err := rows.Scan(
			&item.ID,
			&item.SenderAdID,
			&item.ReceiverAdID,
			&item.Comment,
			&item.Status,
			&item.CreatedAt,
			&item.SenderOwnerID,
			&item.ReceiverOwnerID,
			&item.SenderAdTitle,
			&item.ReceiverAdTitle,
		); err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposals: %w", err)
	}
	return items, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
