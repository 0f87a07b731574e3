package rules

import (
	"fmt"
	"strconv"

	"github.com/jwalitptl/ckd-api/internal/model"
)

type Rule string

const (
	RuleStatusChange    Rule = "status_change"
	RuleDFGDrop         Rule = "dfg_drop"
	RuleProteinuriaRise Rule = "proteinuria_rise"
)

const (
	// dfgDropRatio fires when the new DFG is below 90% of the previous one.
	dfgDropRatio = 0.9
	// proteinuriaRiseRatio fires when proteinuria exceeds 150% of the
	// previous value, but only above proteinuriaFloor g/24h.
	proteinuriaRiseRatio = 1.5
	proteinuriaFloor     = 1.0
)

// candidate is a rule that qualified for the snapshot, before dedup.
type candidate struct {
	rule  Rule
	key   string
	input model.CreateNotificationInput
}

// match returns every rule the snapshot qualifies for, in a fixed order.
func match(info *model.MedicalInfo) []candidate {
	var out []candidate
	if c, ok := statusRule(info); ok {
		out = append(out, c)
	}
	if c, ok := dfgRule(info); ok {
		out = append(out, c)
	}
	if c, ok := proteinuriaRule(info); ok {
		out = append(out, c)
	}
	return out
}

func statusRule(info *model.MedicalInfo) (candidate, bool) {
	var priority, label string
	switch info.Status {
	case model.PatientStatusCritical:
		priority, label = model.NotificationPriorityUrgent, "critical"
	case model.PatientStatusWorsening:
		priority, label = model.NotificationPriorityHigh, "worsening"
	default:
		return candidate{}, false
	}

	notificationType := model.NotificationTypeWarning
	if info.Status == model.PatientStatusCritical {
		notificationType = model.NotificationTypeCritical
	}

	return candidate{
		rule: RuleStatusChange,
		key:  "status_" + string(info.Status),
		input: newInput(info,
			fmt.Sprintf("Patient status %s", label),
			fmt.Sprintf("%s is now in %s condition.", patientLabel(info), label),
			notificationType,
			model.NotificationCategoryPatientStatus,
			priority,
			fmt.Sprintf("/patients/%s", info.PatientID),
			model.JSONMap{"status": string(info.Status)},
		),
	}, true
}

func dfgRule(info *model.MedicalInfo) (candidate, bool) {
	if info.PreviousDFG == nil {
		return candidate{}, false
	}
	prev := *info.PreviousDFG
	if float64(info.DFG) >= float64(prev)*dfgDropRatio {
		return candidate{}, false
	}

	return candidate{
		rule: RuleDFGDrop,
		key:  "dfg_decrease_" + strconv.Itoa(info.DFG),
		input: newInput(info,
			"Significant DFG decrease",
			fmt.Sprintf("DFG of %s dropped from %d to %d mL/min.", patientLabel(info), prev, info.DFG),
			model.NotificationTypeWarning,
			model.NotificationCategoryLabResults,
			model.NotificationPriorityHigh,
			fmt.Sprintf("/patients/%s/analyses", info.PatientID),
			model.JSONMap{"dfg": info.DFG, "previousDfg": prev},
		),
	}, true
}

func proteinuriaRule(info *model.MedicalInfo) (candidate, bool) {
	if info.PreviousProteinurie == nil {
		return candidate{}, false
	}
	prev := *info.PreviousProteinurie
	if info.Proteinurie <= prev*proteinuriaRiseRatio || info.Proteinurie <= proteinuriaFloor {
		return candidate{}, false
	}

	value := strconv.FormatFloat(info.Proteinurie, 'f', -1, 64)
	return candidate{
		rule: RuleProteinuriaRise,
		key:  "proteinurie_increase_" + value,
		input: newInput(info,
			"Significant proteinuria increase",
			fmt.Sprintf("Proteinuria of %s rose from %s to %s g/24h.",
				patientLabel(info), strconv.FormatFloat(prev, 'f', -1, 64), value),
			model.NotificationTypeWarning,
			model.NotificationCategoryLabResults,
			model.NotificationPriorityHigh,
			fmt.Sprintf("/patients/%s/analyses", info.PatientID),
			model.JSONMap{"proteinurie": info.Proteinurie, "previousProteinurie": prev},
		),
	}, true
}

func newInput(info *model.MedicalInfo, title, message, typ, category, priority, actionURL string, meta model.JSONMap) model.CreateNotificationInput {
	patientID := info.PatientID
	actionType := "view_patient"
	if category == model.NotificationCategoryLabResults {
		actionType = "view_analyses"
	}
	return model.CreateNotificationInput{
		UserID:         info.OwnerID,
		PatientID:      &patientID,
		Title:          title,
		Message:        message,
		Type:           typ,
		Category:       category,
		Priority:       priority,
		Status:         model.NotificationStatusPending,
		ActionRequired: true,
		ActionType:     &actionType,
		ActionURL:      &actionURL,
		Metadata:       meta,
	}
}

func patientLabel(info *model.MedicalInfo) string {
	if info.PatientName != "" {
		return info.PatientName
	}
	return "patient " + info.PatientID.String()
}
