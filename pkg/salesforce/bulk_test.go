package salesforce

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkInsertLeads(t *testing.T) {
	t.Run("empty input is a no-op", func(t *testing.T) {
		results, err := BulkInsertLeads(context.Background(), &mockClient{}, nil)
		require.NoError(t, err)
		assert.Nil(t, results)
	})

	t.Run("single batch", func(t *testing.T) {
		var calls int
		mock := &mockClient{
			insertCollectionFn: func(_ context.Context, sObjectName string, records []map[string]any) ([]CollectionResult, error) {
				calls++
				assert.Equal(t, "Lead", sObjectName)
				assert.Len(t, records, 3)
				results := make([]CollectionResult, len(records))
				for i := range records {
					results[i] = CollectionResult{ID: fmt.Sprintf("00Q%03d", i), Success: true}
				}
				return results, nil
			},
		}

		records := []map[string]any{
			{"LastName": "A", "Company": "Acme"},
			{"LastName": "B", "Company": "Acme"},
			{"LastName": "C", "Company": "Acme"},
		}
		results, err := BulkInsertLeads(context.Background(), mock, records)
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.Len(t, results, 3)
	})

	t.Run("splits batches of 200", func(t *testing.T) {
		var sizes []int
		mock := &mockClient{
			insertCollectionFn: func(_ context.Context, _ string, records []map[string]any) ([]CollectionResult, error) {
				sizes = append(sizes, len(records))
				return make([]CollectionResult, len(records)), nil
			},
		}

		records := make([]map[string]any, 450)
		for i := range records {
			records[i] = map[string]any{"LastName": fmt.Sprintf("L%d", i), "Company": "Acme"}
		}
		results, err := BulkInsertLeads(context.Background(), mock, records)
		require.NoError(t, err)
		assert.Equal(t, []int{200, 200, 50}, sizes)
		assert.Len(t, results, 450)
	})

	t.Run("returns partial results on failure", func(t *testing.T) {
		var calls int
		mock := &mockClient{
			insertCollectionFn: func(_ context.Context, _ string, records []map[string]any) ([]CollectionResult, error) {
				calls++
				if calls == 2 {
					return nil, errors.New("api limit exceeded")
				}
				return make([]CollectionResult, len(records)), nil
			},
		}

		records := make([]map[string]any, 250)
		for i := range records {
			records[i] = map[string]any{"LastName": "X", "Company": "Acme"}
		}
		results, err := BulkInsertLeads(context.Background(), mock, records)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "batch 200-250")
		assert.Len(t, results, 200)
	})
}

func TestBulkUpdateLeads(t *testing.T) {
	t.Run("empty input is a no-op", func(t *testing.T) {
		results, err := BulkUpdateLeads(context.Background(), &mockClient{}, nil)
		require.NoError(t, err)
		assert.Nil(t, results)
	})

	t.Run("passes ids and fields through", func(t *testing.T) {
		mock := &mockClient{
			updateCollectionFn: func(_ context.Context, sObjectName string, records []CollectionRecord) ([]CollectionResult, error) {
				assert.Equal(t, "Lead", sObjectName)
				require.Len(t, records, 1)
				assert.Equal(t, "00Qxx", records[0].ID)
				assert.Equal(t, "Hot", records[0].Fields["Rating"])
				return []CollectionResult{{ID: "00Qxx", Success: true}}, nil
			},
		}

		results, err := BulkUpdateLeads(context.Background(), mock, []LeadUpdate{
			{ID: "00Qxx", Fields: map[string]any{"Rating": "Hot"}},
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.True(t, results[0].Success)
	})
}
