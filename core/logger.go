package core

// Logger is any service that can log messages at different levels.
// args may hold errors, maps of extra data or the acting Person.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person is the user on whose behalf something is logged.
type Person struct {
	ID    string
	Name  string
	Email string
}
