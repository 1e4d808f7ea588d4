// Package export pushes qualified assignments into Salesforce as Lead
// records and moves them to the exported bucket.
package export

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/internal/pipeline"
	"github.com/sells-group/leadpipe/internal/store"
	"github.com/sells-group/leadpipe/pkg/salesforce"
)

// ActorExporter is the actor recorded on exported-bucket transitions.
const ActorExporter = "exporter"

// Summary reports what one export run did.
type Summary struct {
	Total        int `json:"total"`
	Exported     int `json:"exported"`
	AlreadyInCRM int `json:"already_in_crm"`
	Failed       int `json:"failed"`
}

// Exporter moves qualified assignments into the CRM.
type Exporter struct {
	store store.Store
	sf    salesforce.Client
	pipe  *pipeline.Pipeline
}

// New creates an Exporter.
func New(st store.Store, sf salesforce.Client, p *pipeline.Pipeline) *Exporter {
	return &Exporter{store: st, sf: sf, pipe: p}
}

// Run exports every qualified assignment for the tenant, optionally
// restricted to one ICP. Leads already present in Salesforce (matched by
// email) are not re-created but still move to exported. Per-assignment
// failures are counted and logged; the run continues.
func (e *Exporter) Run(ctx context.Context, tenantID, icpID string, limit int) (*Summary, error) {
	assignments, err := e.store.ListAssignments(ctx, store.AssignmentFilter{
		TenantID: tenantID,
		ICPID:    icpID,
		Bucket:   model.BucketQualified,
		Limit:    limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "export: list qualified assignments")
	}

	summary := &Summary{Total: len(assignments)}

	type pendingInsert struct {
		assignment *model.Assignment
		lead       *model.Lead
	}
	var inserts []pendingInsert
	var records []map[string]any

	for i := range assignments {
		a := &assignments[i]
		lead, err := e.store.GetLead(ctx, a.LeadID)
		if err != nil || lead == nil {
			summary.Failed++
			zap.L().Error("export: load lead",
				zap.String("assignment_id", a.ID), zap.Error(err))
			continue
		}

		existing, err := salesforce.FindLeadByEmail(ctx, e.sf, lead.Email)
		if err != nil {
			summary.Failed++
			zap.L().Error("export: crm lookup",
				zap.String("lead_id", lead.ID), zap.Error(err))
			continue
		}
		if existing != nil {
			if _, err := e.pipe.MarkExported(ctx, a.ID, ActorExporter); err != nil {
				summary.Failed++
				zap.L().Error("export: mark exported",
					zap.String("assignment_id", a.ID), zap.Error(err))
				continue
			}
			summary.AlreadyInCRM++
			continue
		}

		inserts = append(inserts, pendingInsert{assignment: a, lead: lead})
		records = append(records, LeadFields(lead, a))
	}

	if len(records) > 0 {
		results, err := salesforce.BulkInsertLeads(ctx, e.sf, records)
		if err != nil {
			// Partial results still tell us which assignments made it.
			zap.L().Error("export: bulk insert", zap.Error(err))
		}
		for i, pi := range inserts {
			if i >= len(results) || !results[i].Success {
				summary.Failed++
				continue
			}
			if _, err := e.pipe.MarkExported(ctx, pi.assignment.ID, ActorExporter); err != nil {
				summary.Failed++
				zap.L().Error("export: mark exported",
					zap.String("assignment_id", pi.assignment.ID), zap.Error(err))
				continue
			}
			summary.Exported++
		}
	}

	zap.L().Info("export: run completed",
		zap.String("tenant_id", tenantID),
		zap.Int("total", summary.Total),
		zap.Int("exported", summary.Exported),
		zap.Int("already_in_crm", summary.AlreadyInCRM),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// LeadFields maps a pipeline lead and its assignment onto Salesforce Lead
// fields. LastName and Company are required by Salesforce; gaps are filled
// with placeholders rather than dropping the record.
func LeadFields(lead *model.Lead, a *model.Assignment) map[string]any {
	lastName := lead.LastName
	if lastName == "" {
		lastName = "Unknown"
	}
	company := lead.CompanyName
	if company == "" {
		company = lead.CompanyDomain
	}
	if company == "" {
		company = "Unknown"
	}

	fields := map[string]any{
		"LastName":    lastName,
		"Company":     company,
		"Email":       lead.Email,
		"LeadSource":  lead.SourceName,
		"Rating":      rating(a.Score),
		"Description": fmt.Sprintf("Fit score %.2f", a.Score),
	}
	if lead.FirstName != "" {
		fields["FirstName"] = lead.FirstName
	}
	if lead.Phone != "" {
		fields["Phone"] = lead.Phone
	}
	if lead.JobTitle != "" {
		fields["Title"] = lead.JobTitle
	}
	if lead.CompanyWebsite != "" {
		fields["Website"] = lead.CompanyWebsite
	}
	if lead.CompanyIndustry != "" {
		fields["Industry"] = lead.CompanyIndustry
	}
	if lead.CompanyCountry != "" {
		fields["Country"] = lead.CompanyCountry
	}
	if lead.CompanyEmployees > 0 {
		fields["NumberOfEmployees"] = lead.CompanyEmployees
	}
	return fields
}

func rating(score float64) string {
	switch {
	case score >= 80:
		return "Hot"
	case score >= 50:
		return "Warm"
	default:
		return "Cold"
	}
}
