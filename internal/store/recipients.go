package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// RecipientsForGroups resolves the recipient set for a campaign's groups,
// deduplicated by identity and excluding disabled addresses. Attribute
// maps are loaded in one pass so personalization never queries per send.
func (s *Store) RecipientsForGroups(ctx context.Context, groupIDs []uuid.UUID) ([]*domain.Recipient, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(groupIDs))
	for i, g := range groupIDs {
		ids[i] = g.String()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT r.id, r.email
		FROM recipients r
		JOIN group_members gm ON gm.recipient_id = r.id
		WHERE gm.group_id = ANY($1) AND NOT r.disabled
		ORDER BY r.email
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("recipients for groups: %w", err)
	}
	defer rows.Close()

	var recipients []*domain.Recipient
	byID := make(map[uuid.UUID]*domain.Recipient)
	for rows.Next() {
		r := &domain.Recipient{Attributes: make(map[string]string)}
		if err := rows.Scan(&r.ID, &r.Email); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		recipients = append(recipients, r)
		byID[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, nil
	}

	attrRows, err := s.db.QueryContext(ctx, `
		SELECT ra.recipient_id, ra.key, ra.value
		FROM recipient_attributes ra
		JOIN group_members gm ON gm.recipient_id = ra.recipient_id
		WHERE gm.group_id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("recipient attributes: %w", err)
	}
	defer attrRows.Close()

	for attrRows.Next() {
		var rid uuid.UUID
		var key, value string
		if err := attrRows.Scan(&rid, &key, &value); err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		if r, ok := byID[rid]; ok {
			r.Attributes[key] = value
		}
	}
	return recipients, attrRows.Err()
}

// GetRecipient loads a recipient with its attribute map.
func (s *Store) GetRecipient(ctx context.Context, id uuid.UUID) (*domain.Recipient, error) {
	r := &domain.Recipient{Attributes: make(map[string]string)}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, disabled FROM recipients WHERE id = $1
	`, id).Scan(&r.ID, &r.Email, &r.Disabled)
	if err != nil {
		return nil, fmt.Errorf("get recipient: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value FROM recipient_attributes WHERE recipient_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get recipient attributes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		r.Attributes[k] = v
	}
	return r, rows.Err()
}

// DisableRecipient flips the disabled flag; used by the unsubscribe
// endpoint once the MAC has been verified.
func (s *Store) DisableRecipient(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE recipients SET disabled = TRUE WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("disable recipient: %w", err)
	}
	return nil
}
