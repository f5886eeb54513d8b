// Package logging defines the logger the hardware packages accept. They never
// import a logging library themselves so the same code builds for the
// microcontroller.
package logging

// Logger is an optional logging sink with key-value pairs.
type Logger interface {
	// Debug logs per-command tracing
	Debug(msg string, keysAndValues ...interface{})

	// Info logs progress of long operations
	Info(msg string, keysAndValues ...interface{})

	// Error logs failures that are also reported on the console
	Error(msg string, keysAndValues ...interface{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) Debug(string, ...interface{}) {}
func (Nop) Info(string, ...interface{})  {}
func (Nop) Error(string, ...interface{}) {}

// OrNop returns l, or Nop when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop{}
	}
	return l
}

// Println writes Info and Error lines with the builtin println, which is
// what the firmware has on its debug UART. Debug is dropped.
type Println struct{}

func (Println) Debug(string, ...interface{}) {}

func (Println) Info(msg string, kv ...interface{}) { printKV("I ", msg, kv) }

func (Println) Error(msg string, kv ...interface{}) { printKV("E ", msg, kv) }

func printKV(level, msg string, kv []interface{}) {
	print(level, msg)
	for i := 0; i+1 < len(kv); i += 2 {
		print(" ")
		printValue(kv[i])
		print("=")
		printValue(kv[i+1])
	}
	println()
}

func printValue(v interface{}) {
	switch x := v.(type) {
	case string:
		print(x)
	case int:
		print(x)
	case uint32:
		print(x)
	case uint8:
		print(x)
	case bool:
		print(x)
	case error:
		print(x.Error())
	case nil:
		print("nil")
	default:
		print("?")
	}
}
