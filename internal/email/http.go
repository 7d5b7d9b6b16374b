package email

import (
	"io"
	"net/http"
)

const maxResponseBytes = 1 << 20

func readAll(resp *http.Response) ([]byte, error) {
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
}
