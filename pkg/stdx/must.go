package stdx

// Must1 panics when err is not nil and otherwise returns v.
// It is meant for package-level initialization where a failure is a programming error.
func Must1[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
