package tools

import "errors"

// Action names the upstream service may emit. Anything else is rejected.
const (
	ActionScheduleFollowUp = "schedule_follow_up"
	ActionSendLabOrder     = "send_lab_order"
)

const (
	defaultReason  = "Follow-up appointment"
	defaultUrgency = "routine"
)

var urgencyLevels = map[string]bool{
	"routine": true,
	"urgent":  true,
	"stat":    true,
}

type FollowUpParams struct {
	PatientName string
	Date        string
	Reason      string
}

func ParseFollowUp(args map[string]any) (*FollowUpParams, error) {
	p := &FollowUpParams{Reason: defaultReason}
	if v, ok := args["patientName"].(string); ok && v != "" {
		p.PatientName = v
	} else {
		return nil, errors.New("patient name is required")
	}
	if v, ok := args["date"].(string); ok && v != "" {
		p.Date = v
	} else {
		return nil, errors.New("appointment date is required")
	}
	if v, ok := args["reason"].(string); ok && v != "" {
		p.Reason = v
	}
	return p, nil
}

type LabOrderParams struct {
	PatientName string
	TestType    string
	Urgency     string
}

func ParseLabOrder(args map[string]any) (*LabOrderParams, error) {
	p := &LabOrderParams{Urgency: defaultUrgency}
	if v, ok := args["patientName"].(string); ok && v != "" {
		p.PatientName = v
	} else {
		return nil, errors.New("patient name is required")
	}
	if v, ok := args["testType"].(string); ok && v != "" {
		p.TestType = v
	} else {
		return nil, errors.New("test type is required")
	}
	if v, ok := args["urgency"].(string); ok && v != "" {
		if !urgencyLevels[v] {
			return nil, errors.New("urgency must be one of routine, urgent, stat")
		}
		p.Urgency = v
	}
	return p, nil
}

// Definitions returns the function tool definitions advertised to the
// upstream service in session.update.
func Definitions() []map[string]any {
	return []map[string]any{
		{
			"type":        "function",
			"name":        ActionScheduleFollowUp,
			"description": "Schedule a follow-up appointment for the patient",
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"patientName": map[string]any{"type": "string", "description": "The name of the patient"},
					"reason":      map[string]any{"type": "string", "description": "The reason for the follow-up"},
					"date":        map[string]any{"type": "string", "description": "The requested date in YYYY-MM-DD format"},
				},
				"required": []string{"patientName", "date"},
			},
		},
		{
			"type":        "function",
			"name":        ActionSendLabOrder,
			"description": "Send a lab order for the patient",
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"patientName": map[string]any{"type": "string", "description": "The name of the patient"},
					"testType":    map[string]any{"type": "string", "description": "The type of lab test ordered"},
					"urgency":     map[string]any{"type": "string", "enum": []string{"routine", "urgent", "stat"}, "description": "Urgency level"},
				},
				"required": []string{"patientName", "testType"},
			},
		},
	}
}
