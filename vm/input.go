package vm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ErrNoInput is returned when LEIT executes with no input source.
var ErrNoInput = errors.New("no input available")

// Input supplies numbers to LEIT. ReadNumber may block.
type Input interface {
	ReadNumber() (float64, error)
}

// InputFunc adapts a function to Input.
type InputFunc func() (float64, error)

func (f InputFunc) ReadNumber() (float64, error) {
	return f()
}

type readerInput struct {
	r *bufio.Reader
}

// ReaderInput reads whitespace-separated numbers from r.
func ReaderInput(r io.Reader) Input {
	return &readerInput{r: bufio.NewReader(r)}
}

func (in *readerInput) ReadNumber() (float64, error) {
	var word string
	if _, err := fmt.Fscan(in.r, &word); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, ErrNoInput
		}
		return 0, err
	}
	v, err := strconv.ParseFloat(word, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", word)
	}
	return v, nil
}

// ValuesInput feeds a fixed sequence of numbers.
func ValuesInput(values ...float64) Input {
	i := 0
	return InputFunc(func() (float64, error) {
		if i >= len(values) {
			return 0, ErrNoInput
		}
		v := values[i]
		i++
		return v, nil
	})
}
