// internal/suggestion/repository.go

package suggestion

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Repository is the suggestion store. Reads run outside a transaction;
// every mutation goes through RunInTx.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Suggestion, error)
	ListForUser(ctx context.Context, userID int64, filter ListFilter) ([]*Suggestion, error)
	ListForMatchmaker(ctx context.Context, matchmakerID int64, filter ListFilter) ([]*Suggestion, error)
	History(ctx context.Context, id uuid.UUID) ([]*StatusHistoryEntry, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*Suggestion, error)
	ListWaitlist(ctx context.Context, firstPartyID int64) ([]WaitlistEntry, error)
	WaitlistedFirstParties(ctx context.Context) ([]int64, error)

	// RunInTx commits when fn returns nil and rolls back otherwise
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside one atomic transaction
type Tx interface {
	// LockFirstParty serializes waitlist and status work for one first party.
	// It must be taken before GetForUpdate.
	LockFirstParty(ctx context.Context, firstPartyID int64) error
	// LockParty serializes active-process checks for one user
	LockParty(ctx context.Context, userID int64) error
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Suggestion, error)
	Insert(ctx context.Context, s *Suggestion) error
	// Update writes s if the stored version still equals expectedVersion
	// and sets s.Version to the new value
	Update(ctx context.Context, s *Suggestion, expectedVersion int) error
	AppendHistory(ctx context.Context, e *StatusHistoryEntry) error
	HasHistoryStatus(ctx context.Context, id uuid.UUID, status Status) (bool, error)
	ListWaitlist(ctx context.Context, firstPartyID int64) ([]WaitlistEntry, error)
	UpdateRanks(ctx context.Context, entries []WaitlistEntry) error
	HasActiveProcess(ctx context.Context, userID int64, excludeID uuid.UUID) (bool, error)
	// HasOpenPair reports a non-final suggestion between the two users in either order
	HasOpenPair(ctx context.Context, a, b int64) (bool, error)
	LatestMeeting(ctx context.Context, suggestionID uuid.UUID) (*Meeting, error)
	InsertMeeting(ctx context.Context, m *Meeting) error
	UpdateMeeting(ctx context.Context, m *Meeting) error
}

const defaultListLimit = 50

const suggestionColumns = `
	id, matchmaker_id, first_party_id, second_party_id,
	status, previous_status, priority,
	internal_notes, first_party_notes, second_party_notes, matching_reason,
	requires_rabbinic_approval,
	created_at, last_activity, last_status_change, response_deadline, decision_deadline, closed_at,
	first_party_sent, first_party_responded, second_party_sent, second_party_responded, first_party_approved_at,
	first_party_rank, first_party_interested_at, version`

// suggestionRow is the flat table shape of a Suggestion
type suggestionRow struct {
	ID            uuid.UUID `db:"id"`
	MatchmakerID  int64     `db:"matchmaker_id"`
	FirstPartyID  int64     `db:"first_party_id"`
	SecondPartyID int64     `db:"second_party_id"`

	Status         Status   `db:"status"`
	PreviousStatus *Status  `db:"previous_status"`
	Priority       Priority `db:"priority"`

	Notes
	RequiresRabbinicApproval bool `db:"requires_rabbinic_approval"`

	CreatedAt        time.Time  `db:"created_at"`
	LastActivity     time.Time  `db:"last_activity"`
	LastStatusChange time.Time  `db:"last_status_change"`
	ResponseDeadline time.Time  `db:"response_deadline"`
	DecisionDeadline *time.Time `db:"decision_deadline"`
	ClosedAt         *time.Time `db:"closed_at"`

	FirstPartySent       *time.Time `db:"first_party_sent"`
	FirstPartyResponded  *time.Time `db:"first_party_responded"`
	SecondPartySent      *time.Time `db:"second_party_sent"`
	SecondPartyResponded *time.Time `db:"second_party_responded"`
	FirstPartyApprovedAt *time.Time `db:"first_party_approved_at"`

	FirstPartyRank         sql.NullInt64 `db:"first_party_rank"`
	FirstPartyInterestedAt sql.NullTime  `db:"first_party_interested_at"`

	Version int `db:"version"`
}

func toRow(s *Suggestion) suggestionRow {
	row := suggestionRow{
		ID:                       s.ID,
		MatchmakerID:             s.MatchmakerID,
		FirstPartyID:             s.FirstPartyID,
		SecondPartyID:            s.SecondPartyID,
		Status:                   s.Status,
		PreviousStatus:           s.PreviousStatus,
		Priority:                 s.Priority,
		Notes:                    s.Notes,
		RequiresRabbinicApproval: s.RequiresRabbinicApproval,
		CreatedAt:                s.CreatedAt,
		LastActivity:             s.LastActivity,
		LastStatusChange:         s.LastStatusChange,
		ResponseDeadline:         s.ResponseDeadline,
		DecisionDeadline:         s.DecisionDeadline,
		ClosedAt:                 s.ClosedAt,
		FirstPartySent:           s.FirstPartySent,
		FirstPartyResponded:      s.FirstPartyResponded,
		SecondPartySent:          s.SecondPartySent,
		SecondPartyResponded:     s.SecondPartyResponded,
		FirstPartyApprovedAt:     s.FirstPartyApprovedAt,
		Version:                  s.Version,
	}
	if s.Waitlist != nil {
		row.FirstPartyRank = sql.NullInt64{Int64: int64(s.Waitlist.Rank), Valid: true}
		row.FirstPartyInterestedAt = sql.NullTime{Time: s.Waitlist.InterestedAt, Valid: true}
	}
	return row
}

func (row *suggestionRow) toModel() *Suggestion {
	s := &Suggestion{
		ID:                       row.ID,
		MatchmakerID:             row.MatchmakerID,
		FirstPartyID:             row.FirstPartyID,
		SecondPartyID:            row.SecondPartyID,
		Status:                   row.Status,
		PreviousStatus:           row.PreviousStatus,
		Priority:                 row.Priority,
		Notes:                    row.Notes,
		RequiresRabbinicApproval: row.RequiresRabbinicApproval,
		CreatedAt:                row.CreatedAt,
		LastActivity:             row.LastActivity,
		LastStatusChange:         row.LastStatusChange,
		ResponseDeadline:         row.ResponseDeadline,
		DecisionDeadline:         row.DecisionDeadline,
		ClosedAt:                 row.ClosedAt,
		FirstPartySent:           row.FirstPartySent,
		FirstPartyResponded:      row.FirstPartyResponded,
		SecondPartySent:          row.SecondPartySent,
		SecondPartyResponded:     row.SecondPartyResponded,
		FirstPartyApprovedAt:     row.FirstPartyApprovedAt,
		Version:                  row.Version,
	}
	if row.FirstPartyRank.Valid {
		s.Waitlist = &WaitlistInfo{
			Rank:         int(row.FirstPartyRank.Int64),
			InterestedAt: row.FirstPartyInterestedAt.Time,
		}
	}
	return s
}

func statusStrings(statuses []Status) []string {
	if len(statuses) == 0 {
		return nil
	}
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

type postgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns a Repository backed by Postgres
func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Get(ctx context.Context, id uuid.UUID) (*Suggestion, error) {
	return getSuggestion(ctx, r.db, `SELECT `+suggestionColumns+` FROM suggestions WHERE id = $1`, id)
}

func (r *postgresRepository) ListForUser(ctx context.Context, userID int64, filter ListFilter) ([]*Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM suggestions
		WHERE ((first_party_id = $1 AND status <> 'DRAFT')
		    OR (second_party_id = $1 AND second_party_sent IS NOT NULL))
		  AND ($2::text[] IS NULL OR status = ANY($2))
		ORDER BY last_activity DESC
		LIMIT $3 OFFSET $4`

	return selectSuggestions(ctx, r.db, query, userID, pq.Array(statusStrings(filter.Statuses)), limitOf(filter), filter.Offset)
}

func (r *postgresRepository) ListForMatchmaker(ctx context.Context, matchmakerID int64, filter ListFilter) ([]*Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM suggestions
		WHERE matchmaker_id = $1
		  AND ($2::text[] IS NULL OR status = ANY($2))
		ORDER BY last_activity DESC
		LIMIT $3 OFFSET $4`

	return selectSuggestions(ctx, r.db, query, matchmakerID, pq.Array(statusStrings(filter.Statuses)), limitOf(filter), filter.Offset)
}

func (r *postgresRepository) History(ctx context.Context, id uuid.UUID) ([]*StatusHistoryEntry, error) {
	var entries []*StatusHistoryEntry
	query := `
		SELECT seq, id, suggestion_id, status, reason, notes, created_at
		FROM suggestion_status_history
		WHERE suggestion_id = $1
		ORDER BY created_at, seq
	`
	if err := r.db.SelectContext(ctx, &entries, query, id); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return entries, nil
}

func (r *postgresRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*Suggestion, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `SELECT ` + suggestionColumns + ` FROM suggestions
		WHERE status = ANY($1) AND response_deadline < $2
		ORDER BY response_deadline
		LIMIT $3`

	expirable := []string{string(StatusPendingFirstParty), string(StatusPendingSecondParty)}
	return selectSuggestions(ctx, r.db, query, pq.Array(expirable), now, limit)
}

func (r *postgresRepository) ListWaitlist(ctx context.Context, firstPartyID int64) ([]WaitlistEntry, error) {
	return listWaitlist(ctx, r.db, firstPartyID)
}

func (r *postgresRepository) WaitlistedFirstParties(ctx context.Context) ([]int64, error) {
	var ids []int64
	query := `SELECT DISTINCT first_party_id FROM suggestions WHERE status = $1 ORDER BY first_party_id`
	if err := r.db.SelectContext(ctx, &ids, query, StatusFirstPartyInterested); err != nil {
		return nil, fmt.Errorf("list waitlisted first parties: %w", err)
	}
	return ids, nil
}

func (r *postgresRepository) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapWriteError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

type postgresTx struct {
	tx *sqlx.Tx
}

func (t *postgresTx) advisoryLock(ctx context.Context, key string) error {
	if _, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("advisory lock %s: %w", key, err)
	}
	return nil
}

func (t *postgresTx) LockFirstParty(ctx context.Context, firstPartyID int64) error {
	return t.advisoryLock(ctx, fmt.Sprintf("waitlist:%d", firstPartyID))
}

func (t *postgresTx) LockParty(ctx context.Context, userID int64) error {
	return t.advisoryLock(ctx, fmt.Sprintf("active:%d", userID))
}

func (t *postgresTx) GetForUpdate(ctx context.Context, id uuid.UUID) (*Suggestion, error) {
	return getSuggestion(ctx, t.tx, `SELECT `+suggestionColumns+` FROM suggestions WHERE id = $1 FOR UPDATE`, id)
}

func (t *postgresTx) Insert(ctx context.Context, s *Suggestion) error {
	query := `
		INSERT INTO suggestions (` + suggestionColumns + `
		) VALUES (
			:id, :matchmaker_id, :first_party_id, :second_party_id,
			:status, :previous_status, :priority,
			:internal_notes, :first_party_notes, :second_party_notes, :matching_reason,
			:requires_rabbinic_approval,
			:created_at, :last_activity, :last_status_change, :response_deadline, :decision_deadline, :closed_at,
			:first_party_sent, :first_party_responded, :second_party_sent, :second_party_responded, :first_party_approved_at,
			:first_party_rank, :first_party_interested_at, :version
		)
	`
	if _, err := t.tx.NamedExecContext(ctx, query, toRow(s)); err != nil {
		return mapWriteError(fmt.Errorf("insert suggestion: %w", err))
	}
	return nil
}

func (t *postgresTx) Update(ctx context.Context, s *Suggestion, expectedVersion int) error {
	query := `
		UPDATE suggestions SET
			status = :status,
			previous_status = :previous_status,
			priority = :priority,
			internal_notes = :internal_notes,
			first_party_notes = :first_party_notes,
			second_party_notes = :second_party_notes,
			matching_reason = :matching_reason,
			last_activity = :last_activity,
			last_status_change = :last_status_change,
			response_deadline = :response_deadline,
			decision_deadline = :decision_deadline,
			closed_at = :closed_at,
			first_party_sent = :first_party_sent,
			first_party_responded = :first_party_responded,
			second_party_sent = :second_party_sent,
			second_party_responded = :second_party_responded,
			first_party_approved_at = :first_party_approved_at,
			first_party_rank = :first_party_rank,
			first_party_interested_at = :first_party_interested_at,
			version = version + 1
		WHERE id = :id AND version = :expected_version
	`
	arg := struct {
		suggestionRow
		ExpectedVersion int `db:"expected_version"`
	}{toRow(s), expectedVersion}

	res, err := t.tx.NamedExecContext(ctx, query, arg)
	if err != nil {
		return mapWriteError(fmt.Errorf("update suggestion: %w", err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update suggestion: %w", err)
	}
	if n == 0 {
		return reject(ErrConflict, "suggestion %s changed concurrently", s.ID)
	}

	s.Version = expectedVersion + 1
	return nil
}

func (t *postgresTx) AppendHistory(ctx context.Context, e *StatusHistoryEntry) error {
	query := `
		INSERT INTO suggestion_status_history (id, suggestion_id, status, reason, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq
	`
	err := t.tx.QueryRowxContext(ctx, query,
		e.ID, e.SuggestionID, e.Status, e.Reason, e.Notes, e.CreatedAt,
	).Scan(&e.Seq)
	if err != nil {
		return mapWriteError(fmt.Errorf("append history: %w", err))
	}
	return nil
}

func (t *postgresTx) HasHistoryStatus(ctx context.Context, id uuid.UUID, status Status) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM suggestion_status_history WHERE suggestion_id = $1 AND status = $2)`
	if err := t.tx.GetContext(ctx, &exists, query, id, status); err != nil {
		return false, fmt.Errorf("check history: %w", err)
	}
	return exists, nil
}

func (t *postgresTx) ListWaitlist(ctx context.Context, firstPartyID int64) ([]WaitlistEntry, error) {
	return listWaitlist(ctx, t.tx, firstPartyID)
}

func (t *postgresTx) UpdateRanks(ctx context.Context, entries []WaitlistEntry) error {
	for _, e := range entries {
		_, err := t.tx.ExecContext(ctx,
			`UPDATE suggestions SET first_party_rank = $1 WHERE id = $2 AND status = $3`,
			e.Rank, e.SuggestionID, StatusFirstPartyInterested,
		)
		if err != nil {
			return mapWriteError(fmt.Errorf("update rank: %w", err))
		}
	}
	return nil
}

func (t *postgresTx) HasActiveProcess(ctx context.Context, userID int64, excludeID uuid.UUID) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM suggestions
			WHERE (first_party_id = $1 OR second_party_id = $1)
			  AND status = ANY($2)
			  AND id <> $3
		)
	`
	if err := t.tx.GetContext(ctx, &exists, query, userID, pq.Array(statusStrings(ActiveStatuses())), excludeID); err != nil {
		return false, fmt.Errorf("check active process: %w", err)
	}
	return exists, nil
}

func (t *postgresTx) HasOpenPair(ctx context.Context, a, b int64) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM suggestions
			WHERE ((first_party_id = $1 AND second_party_id = $2)
			    OR (first_party_id = $2 AND second_party_id = $1))
			  AND NOT (status = ANY($3))
		)
	`
	if err := t.tx.GetContext(ctx, &exists, query, a, b, pq.Array(statusStrings(TerminalStatuses()))); err != nil {
		return false, fmt.Errorf("check open pair: %w", err)
	}
	return exists, nil
}

func (t *postgresTx) LatestMeeting(ctx context.Context, suggestionID uuid.UUID) (*Meeting, error) {
	var m Meeting
	query := `
		SELECT id, suggestion_id, scheduled_date, first_party_feedback_status,
		       second_party_feedback_status, feedback, notes, created_at
		FROM suggestion_meetings
		WHERE suggestion_id = $1
		ORDER BY scheduled_date DESC, created_at DESC
		LIMIT 1
		FOR UPDATE
	`
	err := t.tx.GetContext(ctx, &m, query, suggestionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load meeting: %w", err)
	}
	return &m, nil
}

func (t *postgresTx) InsertMeeting(ctx context.Context, m *Meeting) error {
	query := `
		INSERT INTO suggestion_meetings (
			id, suggestion_id, scheduled_date, first_party_feedback_status,
			second_party_feedback_status, feedback, notes, created_at
		) VALUES (
			:id, :suggestion_id, :scheduled_date, :first_party_feedback_status,
			:second_party_feedback_status, :feedback, :notes, :created_at
		)
	`
	if _, err := t.tx.NamedExecContext(ctx, query, m); err != nil {
		return mapWriteError(fmt.Errorf("insert meeting: %w", err))
	}
	return nil
}

func (t *postgresTx) UpdateMeeting(ctx context.Context, m *Meeting) error {
	query := `
		UPDATE suggestion_meetings SET
			first_party_feedback_status = :first_party_feedback_status,
			second_party_feedback_status = :second_party_feedback_status,
			feedback = :feedback,
			notes = :notes
		WHERE id = :id
	`
	if _, err := t.tx.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("update meeting: %w", err)
	}
	return nil
}

func getSuggestion(ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) (*Suggestion, error) {
	var row suggestionRow
	err := sqlx.GetContext(ctx, q, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load suggestion: %w", err)
	}
	return row.toModel(), nil
}

func selectSuggestions(ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) ([]*Suggestion, error) {
	var rows []suggestionRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}

	out := make([]*Suggestion, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out, nil
}

func listWaitlist(ctx context.Context, q sqlx.QueryerContext, firstPartyID int64) ([]WaitlistEntry, error) {
	var entries []WaitlistEntry
	query := `
		SELECT id, first_party_rank FROM suggestions
		WHERE first_party_id = $1 AND status = $2
		ORDER BY first_party_rank
	`
	if err := sqlx.SelectContext(ctx, q, &entries, query, firstPartyID, StatusFirstPartyInterested); err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return entries, nil
}

func limitOf(f ListFilter) int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// mapWriteError turns unique and serialization failures into ErrConflict
func mapWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505", "40001", "40P01":
			return &RejectionError{Kind: ErrConflict, Reason: pqErr.Message}
		}
	}
	return err
}
