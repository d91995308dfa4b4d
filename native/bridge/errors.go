package bridge

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind groups failures so callers can decide how to react without matching
// individual sentinels.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindLimit         Kind = "limit"
	KindArithmetic    Kind = "arithmetic"
	KindLifecycle     Kind = "lifecycle"
)

var (
	// ErrUnauthorized indicates the sender lacks the role the operation requires.
	ErrUnauthorized = errors.New("bridge: unauthorized")
	// ErrPaused indicates the owner has halted deposits and withdrawals.
	ErrPaused = errors.New("bridge: contract is paused")
	// ErrNotPaused indicates Unpause was called while the bridge is running.
	ErrNotPaused = errors.New("bridge: contract is not paused")
	// ErrNoOracleTransferPending indicates no oracle rotation is waiting to be accepted or cancelled.
	ErrNoOracleTransferPending = errors.New("bridge: no oracle transfer pending")
	// ErrNotPendingOracle indicates an account other than the proposed oracle tried to accept the rotation.
	ErrNotPendingOracle = errors.New("bridge: caller is not the pending oracle")
	// ErrOracleTransferAlreadyPending indicates a previous oracle rotation has not been resolved yet.
	ErrOracleTransferAlreadyPending = errors.New("bridge: oracle transfer already pending")
	// ErrNoOwnerTransferPending indicates no ownership handover is waiting to be accepted or cancelled.
	ErrNoOwnerTransferPending = errors.New("bridge: no owner transfer pending")
	// ErrNotPendingOwner indicates an account other than the proposed owner tried to accept the handover.
	ErrNotPendingOwner = errors.New("bridge: caller is not the pending owner")
	// ErrOwnerTransferAlreadyPending indicates a previous ownership handover has not been resolved yet.
	ErrOwnerTransferAlreadyPending = errors.New("bridge: owner transfer already pending")
	// ErrDepositBelowMinimum indicates the deposit is smaller than the configured minimum.
	ErrDepositBelowMinimum = errors.New("bridge: deposit below minimum")
	// ErrNoFundsSent indicates a payable operation arrived without coins.
	ErrNoFundsSent = errors.New("bridge: no funds sent")
	// ErrMultipleDenomsSent indicates a payable operation carried more than one coin.
	ErrMultipleDenomsSent = errors.New("bridge: must send exactly one coin denomination")
	// ErrWrongDenom indicates the attached coin is not the bridged denomination.
	ErrWrongDenom = errors.New("bridge: wrong denomination")
	// ErrUnexpectedFunds indicates coins were attached to a non-payable operation.
	ErrUnexpectedFunds = errors.New("bridge: unexpected funds sent with this message")
	// ErrNonceAlreadyUsed indicates the withdrawal claim was already redeemed.
	ErrNonceAlreadyUsed = errors.New("bridge: nonce already used")
	// ErrNonceExpired indicates the claim was issued before the freshness window.
	ErrNonceExpired = errors.New("bridge: nonce expired")
	// ErrInvalidNonceFormat indicates the nonce is not of the form "<unix-ts>:<suffix>".
	ErrInvalidNonceFormat = errors.New("bridge: invalid nonce format")
	// ErrInvalidSignature indicates a well formed oracle signature did not verify.
	ErrInvalidSignature = errors.New("bridge: invalid signature")
	// ErrSignatureVerificationFailed indicates the oracle key or signature could not be decoded.
	ErrSignatureVerificationFailed = errors.New("bridge: signature verification failed")
	// ErrInvalidPubkeyLength indicates the oracle key is neither 33 nor 65 bytes long.
	ErrInvalidPubkeyLength = errors.New("bridge: invalid public key length")
	// ErrAmountMismatch indicates the claimed token amount differs from the live quote.
	ErrAmountMismatch = errors.New("bridge: credit/token amount mismatch")
	// ErrPlayerDailyLimitExceeded indicates the withdrawal would exceed the player's rolling cap.
	ErrPlayerDailyLimitExceeded = errors.New("bridge: player daily limit exceeded")
	// ErrGlobalDailyLimitExceeded indicates the withdrawal would exceed the bridge-wide rolling cap.
	ErrGlobalDailyLimitExceeded = errors.New("bridge: global daily limit exceeded")
	// ErrCooldownActive indicates the player's previous withdrawal is too recent.
	ErrCooldownActive = errors.New("bridge: withdrawal cooldown active")
	// ErrInsufficientTreasury indicates the payout plus reserve exceeds the treasury balance.
	ErrInsufficientTreasury = errors.New("bridge: insufficient treasury balance")
	// ErrReserveBreached indicates an owner drain would take the treasury below its reserve.
	ErrReserveBreached = errors.New("bridge: treasury reserve would be breached")
	// ErrZeroAmount indicates an amount or rate component is zero.
	ErrZeroAmount = errors.New("bridge: zero amount not allowed")
	// ErrOverflow indicates a result left the 128-bit range or a divisor was zero.
	ErrOverflow = errors.New("bridge: overflow in arithmetic operation")
	// ErrInvalidAddress indicates an address failed bech32 or prefix validation.
	ErrInvalidAddress = errors.New("bridge: invalid address")
	// ErrInvalidMessage indicates the message does not select exactly one operation.
	ErrInvalidMessage = errors.New("bridge: invalid message")
	// ErrNotInitialised indicates the bridge has not been instantiated.
	ErrNotInitialised = errors.New("bridge: contract not instantiated")
	// ErrAlreadyInitialised indicates Instantiate was called a second time.
	ErrAlreadyInitialised = errors.New("bridge: contract already instantiated")
)

type errorClass struct {
	code string
	kind Kind
}

var errorClasses = map[error]errorClass{
	ErrUnauthorized:                 {"UNAUTHORIZED", KindAuthorization},
	ErrPaused:                       {"PAUSED", KindLifecycle},
	ErrNotPaused:                    {"NOT_PAUSED", KindLifecycle},
	ErrNoOracleTransferPending:      {"NO_ORACLE_TRANSFER_PENDING", KindLifecycle},
	ErrNotPendingOracle:             {"NOT_PENDING_ORACLE", KindAuthorization},
	ErrOracleTransferAlreadyPending: {"ORACLE_TRANSFER_ALREADY_PENDING", KindLifecycle},
	ErrNoOwnerTransferPending:       {"NO_OWNER_TRANSFER_PENDING", KindLifecycle},
	ErrNotPendingOwner:              {"NOT_PENDING_OWNER", KindAuthorization},
	ErrOwnerTransferAlreadyPending:  {"OWNER_TRANSFER_ALREADY_PENDING", KindLifecycle},
	ErrDepositBelowMinimum:          {"DEPOSIT_BELOW_MINIMUM", KindValidation},
	ErrNoFundsSent:                  {"NO_FUNDS_SENT", KindValidation},
	ErrMultipleDenomsSent:           {"MULTIPLE_DENOMS_SENT", KindValidation},
	ErrWrongDenom:                   {"WRONG_DENOM", KindValidation},
	ErrUnexpectedFunds:              {"UNEXPECTED_FUNDS", KindValidation},
	ErrNonceAlreadyUsed:             {"NONCE_ALREADY_USED", KindAuthorization},
	ErrNonceExpired:                 {"NONCE_EXPIRED", KindAuthorization},
	ErrInvalidNonceFormat:           {"INVALID_NONCE_FORMAT", KindValidation},
	ErrInvalidSignature:             {"INVALID_SIGNATURE", KindAuthorization},
	ErrSignatureVerificationFailed:  {"SIGNATURE_VERIFICATION_FAILED", KindAuthorization},
	ErrInvalidPubkeyLength:          {"INVALID_PUBKEY_LENGTH", KindValidation},
	ErrAmountMismatch:               {"AMOUNT_MISMATCH", KindValidation},
	ErrPlayerDailyLimitExceeded:     {"PLAYER_DAILY_LIMIT_EXCEEDED", KindLimit},
	ErrGlobalDailyLimitExceeded:     {"GLOBAL_DAILY_LIMIT_EXCEEDED", KindLimit},
	ErrCooldownActive:               {"COOLDOWN_ACTIVE", KindLimit},
	ErrInsufficientTreasury:         {"INSUFFICIENT_TREASURY", KindLimit},
	ErrReserveBreached:              {"RESERVE_BREACHED", KindLimit},
	ErrZeroAmount:                   {"ZERO_AMOUNT", KindValidation},
	ErrOverflow:                     {"OVERFLOW", KindArithmetic},
	ErrInvalidAddress:               {"INVALID_ADDRESS", KindValidation},
	ErrInvalidMessage:               {"INVALID_MESSAGE", KindValidation},
	ErrNotInitialised:               {"NOT_INITIALISED", KindLifecycle},
	ErrAlreadyInitialised:           {"ALREADY_INITIALISED", KindLifecycle},
}

// Error is a rejected bridge operation. It unwraps to one of the package
// sentinels and carries the values that triggered the rejection.
type Error struct {
	Code    string
	Kind    Kind
	Message string
	Details map[string]string

	err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return "bridge: " + e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// detail builds a key/value pair list for newError.
type detail struct {
	key   string
	value string
}

func kv(key string, value interface{}) detail {
	return detail{key: key, value: fmt.Sprint(value)}
}

func newError(sentinel error, message string, details ...detail) *Error {
	class, ok := errorClasses[sentinel]
	if !ok {
		class = errorClass{code: "INTERNAL", kind: KindValidation}
	}
	if message == "" {
		message = strings.TrimPrefix(sentinel.Error(), "bridge: ")
	}
	e := &Error{Code: class.code, Kind: class.kind, Message: message, err: sentinel}
	if len(details) > 0 {
		e.Details = make(map[string]string, len(details))
		for _, d := range details {
			e.Details[d.key] = d.value
		}
	}
	return e
}

// fail returns the sentinel wrapped with its default message.
func fail(sentinel error) *Error {
	return newError(sentinel, "")
}

// AsError extracts the bridge error from err, if any.
func AsError(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// Code returns the stable code for err. Non-bridge errors map to "INTERNAL".
func Code(err error) string {
	if be, ok := AsError(err); ok {
		return be.Code
	}
	for sentinel, class := range errorClasses {
		if errors.Is(err, sentinel) {
			return class.code
		}
	}
	return "INTERNAL"
}

// Codes lists every stable error code in sorted order.
func Codes() []string {
	out := make([]string, 0, len(errorClasses))
	for _, class := range errorClasses {
		out = append(out, class.code)
	}
	sort.Strings(out)
	return out
}

func errUnauthorized(role string) *Error {
	return newError(ErrUnauthorized, fmt.Sprintf("unauthorized: only %s can perform this action", role), kv("role", role))
}

func errWrongDenom(expected, got string) *Error {
	return newError(ErrWrongDenom, fmt.Sprintf("wrong denomination: expected %s, got %s", expected, got),
		kv("expected", expected), kv("got", got))
}

func errDepositBelowMinimum(min, denom string) *Error {
	return newError(ErrDepositBelowMinimum, fmt.Sprintf("deposit amount below minimum of %s %s", min, denom), kv("min", min))
}

func errNonceAlreadyUsed(nonce string) *Error {
	return newError(ErrNonceAlreadyUsed, fmt.Sprintf("withdrawal nonce %s has already been used", nonce), kv("nonce", nonce))
}

func errNonceExpired(window uint64) *Error {
	return newError(ErrNonceExpired, fmt.Sprintf("nonce has expired (older than %d seconds)", window), kv("window", window))
}

func errInvalidPubkeyLength(length int) *Error {
	return newError(ErrInvalidPubkeyLength,
		fmt.Sprintf("invalid public key length: %d bytes (expected 33 compressed or 65 uncompressed)", length),
		kv("length", length))
}

func errAmountMismatch(credits, expected, provided string) *Error {
	return newError(ErrAmountMismatch,
		fmt.Sprintf("credit/token amount mismatch: expected %s tokens for %s credits, got %s", expected, credits, provided),
		kv("credits", credits), kv("expected_tokens", expected), kv("provided_tokens", provided))
}

func errLimitExceeded(sentinel error, scope, used, requested, limit string) *Error {
	return newError(sentinel,
		fmt.Sprintf("withdrawal exceeds %s daily limit: %s + %s > %s credits", scope, used, requested, limit),
		kv("used", used), kv("requested", requested), kv("limit", limit))
}

func errCooldownActive(availableAt uint64) *Error {
	return newError(ErrCooldownActive,
		fmt.Sprintf("withdrawal cooldown active: next withdrawal available at %d", availableAt),
		kv("available_at", availableAt))
}

func errInsufficientTreasury(needed, available, reserve string) *Error {
	return newError(ErrInsufficientTreasury,
		fmt.Sprintf("insufficient treasury balance: need %s, have %s, reserve minimum is %s", needed, available, reserve),
		kv("needed", needed), kv("available", available), kv("reserve_min", reserve))
}

func errReserveBreached(reserve string) *Error {
	return newError(ErrReserveBreached,
		fmt.Sprintf("treasury withdrawal would breach minimum reserve of %s", reserve), kv("reserve_min", reserve))
}

func errInvalidAddress(field, value string, cause error) *Error {
	return newError(ErrInvalidAddress, fmt.Sprintf("invalid %s address %q: %v", field, value, cause), kv("field", field))
}
