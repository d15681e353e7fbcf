// Package errors provides examples of structured error handling in spawnpool.
package errors_test

import (
	"fmt"
	"io"

	"github.com/happyflowgames/spawnpool/pkg/errors"
)

// Example demonstrates basic error creation and details.
func Example() {
	err := errors.New(errors.ErrorTypeConfig, "growth batch must be at least 1")

	err = err.WithDetail("pool", "Platform").
		WithDetail("growth_batch", 0)

	fmt.Println(err.Error())

	// Output:
	// config: growth batch must be at least 1
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeFile, "failed to read pool config").
		WithDetail("file", "pools.yaml")

	if errors.IsType(err, errors.ErrorTypeFile) {
		fmt.Println("This is a file error")
	}
	fmt.Println(err)

	// Output:
	// This is a file error
	// file: failed to read pool config: unexpected EOF
}

// ExampleDetail shows how details survive wrapping.
func ExampleDetail() {
	inner := errors.New(errors.ErrorTypeNotFound, "instance is not active in pool").
		WithDetail("pool", "Bad")
	outer := errors.Wrap(inner, errors.ErrorTypeValidation, "return rejected")

	pool, _ := errors.Detail(outer, "pool")
	fmt.Println(pool)
	fmt.Println(errors.IsType(outer, errors.ErrorTypeValidation))

	// Output:
	// Bad
	// true
}
