package salesforce

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindLeadByEmail(t *testing.T) {
	t.Run("returns lead when found", func(t *testing.T) {
		mock := &mockClient{
			queryFn: func(_ context.Context, soql string, out any) error {
				assert.Contains(t, soql, "Email = 'jane@acme.com'")
				assert.Contains(t, soql, "SELECT Id, FirstName")
				assert.Contains(t, soql, "LIMIT 1")

				leads := out.(*[]Lead)
				*leads = []Lead{
					{ID: "00Qxx", Email: "jane@acme.com", LastName: "Doe", Company: "Acme"},
				}
				return nil
			},
		}

		lead, err := FindLeadByEmail(context.Background(), mock, "jane@acme.com")
		require.NoError(t, err)
		require.NotNil(t, lead)
		assert.Equal(t, "00Qxx", lead.ID)
		assert.Equal(t, "Doe", lead.LastName)
	})

	t.Run("returns nil when not found", func(t *testing.T) {
		mock := &mockClient{
			queryFn: func(_ context.Context, _ string, out any) error {
				leads := out.(*[]Lead)
				*leads = []Lead{}
				return nil
			},
		}

		lead, err := FindLeadByEmail(context.Background(), mock, "nobody@acme.com")
		require.NoError(t, err)
		assert.Nil(t, lead)
	})

	t.Run("escapes single quotes", func(t *testing.T) {
		mock := &mockClient{
			queryFn: func(_ context.Context, soql string, _ any) error {
				assert.Contains(t, soql, `o\'brien@acme.com`)
				return nil
			},
		}

		_, err := FindLeadByEmail(context.Background(), mock, "o'brien@acme.com")
		require.NoError(t, err)
	})

	t.Run("returns error on query failure", func(t *testing.T) {
		mock := &mockClient{
			queryFn: func(_ context.Context, _ string, _ any) error {
				return errors.New("connection refused")
			},
		}

		lead, err := FindLeadByEmail(context.Background(), mock, "jane@acme.com")
		assert.Error(t, err)
		assert.Nil(t, lead)
		assert.Contains(t, err.Error(), "find lead by email")
	})
}

func TestSOQLContainsAllLeadFields(t *testing.T) {
	mock := &mockClient{
		queryFn: func(_ context.Context, soql string, _ any) error {
			for _, field := range leadFields {
				assert.Contains(t, soql, field, "SOQL should contain field: %s", field)
			}
			return nil
		},
	}

	_, err := FindLeadByEmail(context.Background(), mock, "jane@acme.com")
	require.NoError(t, err)
}

func TestCreateLead(t *testing.T) {
	t.Run("creates lead with required fields", func(t *testing.T) {
		mock := &mockClient{
			insertOneFn: func(_ context.Context, sObjectName string, record map[string]any) (string, error) {
				assert.Equal(t, "Lead", sObjectName)
				assert.Equal(t, "Doe", record["LastName"])
				return "00Qxx", nil
			},
		}

		id, err := CreateLead(context.Background(), mock, map[string]any{
			"LastName": "Doe",
			"Company":  "Acme",
			"Email":    "jane@acme.com",
		})
		require.NoError(t, err)
		assert.Equal(t, "00Qxx", id)
	})

	t.Run("requires LastName", func(t *testing.T) {
		_, err := CreateLead(context.Background(), &mockClient{}, map[string]any{"Company": "Acme"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "LastName is required")
	})

	t.Run("requires Company", func(t *testing.T) {
		_, err := CreateLead(context.Background(), &mockClient{}, map[string]any{"LastName": "Doe"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "Company is required")
	})
}

func TestUpdateLead(t *testing.T) {
	t.Run("updates lead", func(t *testing.T) {
		var gotID string
		mock := &mockClient{
			updateOneFn: func(_ context.Context, sObjectName string, id string, fields map[string]any) error {
				assert.Equal(t, "Lead", sObjectName)
				gotID = id
				assert.Equal(t, "Hot", fields["Rating"])
				return nil
			},
		}

		err := UpdateLead(context.Background(), mock, "00Qxx", map[string]any{"Rating": "Hot"})
		require.NoError(t, err)
		assert.Equal(t, "00Qxx", gotID)
	})

	t.Run("requires id", func(t *testing.T) {
		err := UpdateLead(context.Background(), &mockClient{}, "", map[string]any{"Rating": "Hot"})
		assert.Error(t, err)
	})

	t.Run("requires fields", func(t *testing.T) {
		err := UpdateLead(context.Background(), &mockClient{}, "00Qxx", nil)
		assert.Error(t, err)
	})
}
