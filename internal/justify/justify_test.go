package justify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/buyerd/internal/catalog"
	"github.com/fyrsmithlabs/buyerd/internal/oracle"
)

type fakeCompleter struct {
	response string
	err      error
	lastUser string
}

func (f *fakeCompleter) Complete(_ context.Context, _, user string, _ ...oracle.Option) (string, error) {
	f.lastUser = user
	return f.response, f.err
}

func TestJustify_WithRows(t *testing.T) {
	fake := &fakeCompleter{response: "The Logitech M185 balances price and rating for you.\n"}
	j := NewLLMJustifier(fake, nil)

	rows := []catalog.ProductRow{
		{Title: "Logitech M185", Amount: 899, Rating: 4.4, Reviews: 1200, Source: "amazon"},
	}
	answer, err := j.Justify(context.Background(), "why this one?", []string{"price_conscious"}, rows)
	require.NoError(t, err)
	assert.Equal(t, "The Logitech M185 balances price and rating for you.", answer)
	assert.Contains(t, fake.lastUser, "Logitech M185")
	assert.Contains(t, fake.lastUser, "price_conscious")
}

func TestJustify_NoRowsStillAnswers(t *testing.T) {
	fake := &fakeCompleter{response: "I rank by price first since you are price conscious."}
	j := NewLLMJustifier(fake, nil)

	answer, err := j.Justify(context.Background(), "why?", []string{"price_conscious"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, answer)
	assert.Contains(t, fake.lastUser, "no current results")
}

func TestJustify_Failures(t *testing.T) {
	j := NewLLMJustifier(&fakeCompleter{err: errors.New("boom")}, nil)
	_, err := j.Justify(context.Background(), "why?", nil, nil)
	assert.ErrorIs(t, err, ErrJustificationFailed)

	j = NewLLMJustifier(&fakeCompleter{response: "   "}, nil)
	_, err = j.Justify(context.Background(), "why?", nil, nil)
	assert.ErrorIs(t, err, ErrJustificationFailed)
}

func TestRenderTableTruncates(t *testing.T) {
	rows := make([]catalog.ProductRow, 14)
	for i := range rows {
		rows[i] = catalog.ProductRow{Title: "item", Amount: 1}
	}
	table := renderTable(rows)
	assert.Contains(t, table, "... and 4 more")
	assert.Equal(t, 12, strings.Count(table, "\n"))
}
