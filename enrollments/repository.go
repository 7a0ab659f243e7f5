package enrollments

import (
	"database/sql"
	"strings"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const enrollmentColumns = `id, user_id, product_type, product_id, subjects, amount, currency, enrollment_date, expiry_date, payment_status, IFNULL(gateway_order_id,''), IFNULL(gateway_payment_id,'')`

func scanEnrollment(row interface{ Scan(...any) error }) (*Enrollment, error) {
	var e Enrollment
	var subjects string
	var expiry sql.NullTime
	if err := row.Scan(&e.ID, &e.UserID, &e.ProductType, &e.ProductID, &subjects, &e.Amount, &e.Currency, &e.EnrollmentDate, &expiry, &e.PaymentStatus, &e.GatewayOrderID, &e.GatewayPaymentID); err != nil {
		return nil, err
	}
	e.Subjects = splitSubjects(subjects)
	if expiry.Valid {
		t := expiry.Time
		e.ExpiryDate = &t
	}
	return &e, nil
}

// Create inserts a new row. Status defaults to pending when unset.
func (r *Repository) Create(e *Enrollment) error {
	if e.PaymentStatus == "" {
		e.PaymentStatus = StatusPending
	}
	if e.Currency == "" {
		e.Currency = "INR"
	}
	var expiry any
	if e.ExpiryDate != nil {
		expiry = *e.ExpiryDate
	}
	res, err := r.db.Exec(`INSERT INTO enrollments (user_id, product_type, product_id, subjects, amount, currency, enrollment_date, expiry_date, payment_status) VALUES (?,?,?,?,?,?,?,?,?)`,
		e.UserID, e.ProductType, e.ProductID, joinSubjects(e.Subjects), e.Amount, e.Currency, e.EnrollmentDate, expiry, e.PaymentStatus)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = int(id)
	return nil
}

func (r *Repository) GetByID(id int) (*Enrollment, error) {
	row := r.db.QueryRow(`SELECT `+enrollmentColumns+` FROM enrollments WHERE id=? LIMIT 1`, id)
	e, err := scanEnrollment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// SetGatewayOrder records the gateway order handle on a pending row.
func (r *Repository) SetGatewayOrder(id int, orderID string) error {
	_, err := r.db.Exec(`UPDATE enrollments SET gateway_order_id=? WHERE id=?`, orderID, id)
	return err
}

// MarkPaid transitions pending -> paid. Returns false when the row was not
// pending anymore, which is how a concurrent duplicate finalization is
// detected and degraded to a no-op.
func (r *Repository) MarkPaid(id int, paymentID string) (bool, error) {
	res, err := r.db.Exec(`UPDATE enrollments SET payment_status=?, gateway_payment_id=? WHERE id=? AND payment_status=?`,
		StatusPaid, paymentID, id, StatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkFailed transitions pending -> failed (terminal; row stays excluded
// from aggregation). Already-finalized rows are left untouched.
func (r *Repository) MarkFailed(id int) error {
	_, err := r.db.Exec(`UPDATE enrollments SET payment_status=? WHERE id=? AND payment_status=?`,
		StatusFailed, id, StatusPending)
	return err
}

// PaidByUser returns every paid row of a user, the input to Aggregate.
func (r *Repository) PaidByUser(userID int) ([]Enrollment, error) {
	return r.query(`SELECT `+enrollmentColumns+` FROM enrollments WHERE user_id=? AND payment_status=?`, userID, StatusPaid)
}

// PaidByProduct returns the paid rows of a user for one product.
func (r *Repository) PaidByProduct(userID int, productType string, productID int) ([]Enrollment, error) {
	return r.query(`SELECT `+enrollmentColumns+` FROM enrollments WHERE user_id=? AND payment_status=? AND product_type=? AND product_id=?`,
		userID, StatusPaid, productType, productID)
}

// EntitlementFor recomputes the merged view for one (user, product), or nil
// when nothing paid exists.
func (r *Repository) EntitlementFor(userID int, productType string, productID int) (*Entitlement, error) {
	rows, err := r.PaidByProduct(userID, productType, productID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	merged := Aggregate(rows)
	ent := merged[ProductKey{Type: productType, ID: productID}]
	return &ent, nil
}

func (r *Repository) query(q string, args ...any) ([]Enrollment, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Enrollment{}
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func joinSubjects(subjects []string) string {
	return strings.Join(subjects, ",")
}

func splitSubjects(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
