package intake

import (
	"fmt"
	"io"

	"github.com/emersion/go-mbox"
)

// ReadMbox parses every message of an mbox stream and hands it to fn.
// Messages that fail to parse are reported through onError and skipped.
// Returning an error from fn stops the walk.
func ReadMbox(r io.Reader, fn func(*Message) error, onError func(index int, err error)) (int, error) {
	reader := mbox.NewReader(r)
	count := 0
	for i := 0; ; i++ {
		mr, err := reader.NextMessage()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to read mbox message %d: %w", i, err)
		}

		msg, err := ParseMessage(mr)
		if err != nil {
			if onError != nil {
				onError(i, err)
			}
			continue
		}
		if err := fn(msg); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
