package customers_repo

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"purchaseorders/internal/domain"
)

func TestCreateCustomerDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	customer := &domain.Customer{
		ID:        "c-1",
		Name:      "Ada",
		Surname:   "Lovelace",
		Email:     "ada@example.com",
		CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO customers")).
		WithArgs("c-1", "Ada", "Lovelace", "ada@example.com", customer.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO customers")).
		WillReturnError(&pq.Error{Code: "23505"})

	repo := NewCustomerRepository()
	require.NoError(t, repo.CreateCustomerTx(context.Background(), db, customer))
	assert.ErrorIs(t, repo.CreateCustomerTx(context.Background(), db, customer), domain.ErrCustomerAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCustomer(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	columns := []string{"id", "name", "surname", "email", "created_at"}
	createdAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM customers WHERE id = $1")).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("c-1", "Ada", "Lovelace", "ada@example.com", createdAt))
	mock.ExpectQuery(regexp.QuoteMeta("FROM customers WHERE id = $1")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(columns))

	repo := NewCustomerRepository()
	customer, err := repo.GetCustomerTx(context.Background(), db, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "Lovelace", customer.Surname)
	assert.Equal(t, createdAt, customer.CreatedAt)

	_, err = repo.GetCustomerTx(context.Background(), db, "ghost")
	assert.ErrorIs(t, err, domain.ErrCustomerNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
