package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Reusable sentinel errors.
var (
	SqlErrForeignKeyViolation = errors.New("foreign key violation")
	SqlError                  = errors.New("sql error")
)

// ErrorCode defines a standardized error code.
type ErrorCode struct {
	Code    string
	Status  int
	Message string // default message
}

var (
	// Generic app
	ErrInvalidInputCode   = ErrorCode{Code: "APP_INVALID_INPUT", Status: http.StatusBadRequest, Message: "invalid input"}
	ErrServerCode         = ErrorCode{Code: "APP_INTERNAL", Status: http.StatusInternalServerError, Message: "internal server error"}
	ErrRecordNotFoundCode = ErrorCode{Code: "APP_NOT_FOUND", Status: http.StatusNotFound, Message: "record not found"}
	ErrGoneCode           = ErrorCode{Code: "APP_GONE", Status: http.StatusGone, Message: "record deleted concurrently"}

	// Business/domain rules
	ErrBusinessRuleCode        = ErrorCode{Code: "BUSINESS_RULE_VIOLATION", Status: http.StatusUnprocessableEntity, Message: "business rule violated"}
	ErrVersionConflictCode     = ErrorCode{Code: "BUSINESS_VERSION_CONFLICT", Status: http.StatusConflict, Message: "stale account version"}
	ErrInsufficientFundsCode   = ErrorCode{Code: "BUSINESS_INSUFFICIENT_FUNDS", Status: http.StatusConflict, Message: "insufficient balance"}
	ErrCurrencyMismatchCode    = ErrorCode{Code: "BUSINESS_CURRENCY_MISMATCH", Status: http.StatusUnprocessableEntity, Message: "currency mismatch"}
	ErrCurrencyUnsupportedCode = ErrorCode{Code: "BUSINESS_CURRENCY_UNSUPPORTED", Status: http.StatusUnprocessableEntity, Message: "currency not supported"}
	ErrAccountClosedCode       = ErrorCode{Code: "BUSINESS_ACCOUNT_CLOSED", Status: http.StatusConflict, Message: "account is closed"}
	ErrAccountFrozenCode       = ErrorCode{Code: "BUSINESS_ACCOUNT_FROZEN", Status: http.StatusConflict, Message: "account is frozen"}
	ErrInvalidAmountCode       = ErrorCode{Code: "BUSINESS_INVALID_AMOUNT", Status: http.StatusUnprocessableEntity, Message: "invalid amount"}
	ErrSameAccountCode         = ErrorCode{Code: "BUSINESS_SAME_ACCOUNT", Status: http.StatusUnprocessableEntity, Message: "source and target accounts are identical"}

	// Integrity: post-mutation verification failed. Never retried.
	ErrIntegrityCode = ErrorCode{Code: "LEDGER_INTEGRITY_VIOLATION", Status: http.StatusInternalServerError, Message: "balance verification failed"}

	// SQL layer
	ErrSQLUnknownCode   = ErrorCode{Code: "SQL_UNKNOWN", Status: http.StatusInternalServerError, Message: "sql error"}
	ErrSQLConflictCode  = ErrorCode{Code: "SQL_CONFLICT", Status: http.StatusConflict, Message: "sql conflict"}
	ErrSQLDuplicateCode = ErrorCode{Code: "SQL_DUPLICATE", Status: http.StatusConflict, Message: "duplicate record"}
	ErrSQLInvalidInput  = ErrorCode{Code: "SQL_INVALID_INPUT", Status: http.StatusBadRequest, Message: "invalid input"}
	ErrSQLTransientCode = ErrorCode{Code: "SQL_TRANSIENT", Status: http.StatusServiceUnavailable, Message: "transient database error"}
)

// AppError is the typed failure carried across layers. State optionally holds
// the current stored entity for conflict responses so the caller can re-read
// and retry without another round-trip.
type AppError struct {
	Code    ErrorCode
	Message string // public-facing message
	Cause   error  // internal cause (wrapped)
	State   any
}

func (e AppError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}
func (e AppError) Unwrap() error { return e.Cause }

func New(code ErrorCode, msg string, cause error) error {
	return AppError{Code: code, Message: msg, Cause: cause}
}

// NewConflict builds a version-conflict error carrying the fresh stored state.
func NewConflict(msg string, current any) error {
	return AppError{Code: ErrVersionConflictCode, Message: msg, State: current}
}

// Is reports whether err is an AppError with the given code.
func Is(err error, code ErrorCode) bool {
	var appErr AppError
	return errors.As(err, &appErr) && appErr.Code.Code == code.Code
}

// IsTransient classifies failures worth an automatic retry: serialization
// failures, deadlock victims and connection-class errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001": // serialization_failure
			return true
		case pgErr.Code == "40P01": // deadlock_detected
			return true
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08": // connection_exception class
			return true
		}
		return false
	}
	if pgconn.SafeToRetry(err) {
		return true
	}
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.Code.Code == ErrSQLTransientCode.Code
	}
	return false
}

// HandleSQLError maps pg errors -> AppError with proper codes/status.
func HandleSQLError(logger *zap.Logger, err error) error {
	var pgErr *pgconn.PgError
	if errors.Is(err, pgx.ErrNoRows) {
		logger.Warn("sql error : no records found")
		return New(ErrRecordNotFoundCode, "no records found", err)
	}
	if !errors.As(err, &pgErr) {
		logger.Error("sql error : unknown", zap.Error(err))
		return New(ErrSQLUnknownCode, "sql error", err)
	}

	// Log rich pg error context
	logger.Error("sql error",
		zap.String("code", pgErr.Code),
		zap.String("message", pgErr.Message),
		zap.String("detail", pgErr.Detail),
		zap.String("schema", pgErr.SchemaName),
		zap.String("table", pgErr.TableName),
		zap.String("column", pgErr.ColumnName),
		zap.String("constraint", pgErr.ConstraintName),
	)

	switch pgErr.Code {
	case "40001", "40P01":
		return AppError{Code: ErrSQLTransientCode, Message: "transient conflict", Cause: err}
	case "23505": // unique_violation
		return New(ErrSQLDuplicateCode, "duplicate value violates unique constraint", SqlError)
	case "23503": // foreign_key_violation
		return New(ErrSQLConflictCode, "foreign key violation", SqlErrForeignKeyViolation)
	case "23514": // check_violation
		return New(ErrSQLInvalidInput, "check constraint violation", SqlError)
	case "22P02": // invalid_text_representation Ex: bad UUID
		return New(ErrSQLInvalidInput, "invalid input syntax", SqlError)
	case "22001": // string_data_right_truncation
		return New(ErrSQLInvalidInput, "value too long for column", SqlError)
	case "22003": // numeric_value_out_of_range
		return New(ErrSQLInvalidInput, "numeric value out of range", SqlError)
	default:
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08" {
			return AppError{Code: ErrSQLTransientCode, Message: "connection error", Cause: err}
		}
		return New(ErrSQLUnknownCode, "sql error", SqlError)
	}
}
