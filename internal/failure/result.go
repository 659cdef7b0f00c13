package failure

// Result is the tagged success/failure envelope. Success is the only reliable
// failure signal; Error carries a short user-facing message.
type Result[T any] struct {
	Success bool   `json:"success"`
	Data    *T     `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// OK wraps data in a successful result.
func OK[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: &data}
}

// Fail wraps err in a failed result.
func Fail[T any](err error) Result[T] {
	fe := From(err)
	if fe == nil {
		fe = Unexpected(nil)
	}
	return Result[T]{Success: false, Error: fe.Message, Code: fe.Code}
}

// Of builds a result from a conventional (value, error) pair.
func Of[T any](data T, err error) Result[T] {
	if err != nil {
		return Fail[T](err)
	}
	return OK(data)
}
