package errors

import "encoding/json"

type TipBotErrorType int

const (
	InvalidAmountError TipBotErrorType = 1000 + iota
	UserNotFoundError
)

const (
	ProviderError TipBotErrorType = 2000 + iota
	PersistenceError
	InvariantError
)

func New(code TipBotErrorType, err error) TipBotError {
	return TipBotError{Err: err, Message: err.Error(), Code: code}
}

type TipBotError struct {
	Message string `json:"message"`
	Err     error
	Code    TipBotErrorType `json:"code"`
}

func (e TipBotError) Error() string {
	j, err := json.Marshal(&e)
	if err != nil {
		return e.Message
	}
	return string(j)
}
