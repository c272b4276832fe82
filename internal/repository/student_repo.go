package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"

	"github.com/jackc/pgx/v5"
)

func findStudentByAdmission(ctx context.Context, q querier, admissionNo string) (*domain.Student, error) {
	admissionNo = strings.TrimSpace(admissionNo)
	if admissionNo == "" {
		return nil, domain.ErrNotFound
	}

	query := `
		SELECT
			s.id, s.admission_no, s.first_name, s.last_name, s.status,
			COALESCE(sfb.balance, 0)::text,
			COALESCE(s.parent_phone, ''), COALESCE(s.parent_email, '')
		FROM students s
		LEFT JOIN student_fee_balances sfb ON s.id = sfb.student_id
		WHERE UPPER(s.admission_no) = UPPER($1)
		LIMIT 1
	`

	var (
		s       domain.Student
		balance string
	)
	err := q.QueryRow(ctx, query, admissionNo).Scan(
		&s.ID,
		&s.AdmissionNo,
		&s.FirstName,
		&s.LastName,
		&s.Status,
		&balance,
		&s.ParentPhone,
		&s.ParentEmail,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find student %s: %w", admissionNo, err)
	}
	s.Balance = parseDecimal(&balance)
	return &s, nil
}
