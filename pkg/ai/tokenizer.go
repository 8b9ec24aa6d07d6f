package ai

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultEncoding is used when the model name is unknown to the tokenizer.
const DefaultEncoding = "cl100k_base"

// Tokenizer counts tokens the way the metering ledger records them.
type Tokenizer interface {
	CountTokens(text string) int
}

var loaderOnce sync.Once

// TiktokenCounter counts tokens with a BPE encoding bundled in the binary,
// so counting never reaches the network.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter resolves the encoding for model, falling back to
// DefaultEncoding for models tiktoken does not know.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	model = strings.TrimSpace(model)
	if model != "" {
		if enc, err := tiktoken.EncodingForModel(model); err == nil {
			return &TiktokenCounter{enc: enc}, nil
		}
	}
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer encoding: %w", err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

// CountTokens returns the number of tokens in text. Special tokens are
// counted as ordinary text.
func (c *TiktokenCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.EncodeOrdinary(text))
}
