package rules

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ckd-api/internal/model"
	"github.com/jwalitptl/ckd-api/pkg/metrics"
)

type recordingNotifier struct {
	mu     sync.Mutex
	inputs []model.CreateNotificationInput
	fail   map[string]error
	delay  time.Duration
}

func (n *recordingNotifier) Create(_ context.Context, input model.CreateNotificationInput) (*model.Notification, error) {
	if n.delay > 0 {
		time.Sleep(n.delay)
	}
	n.mu.Lock()
	n.inputs = append(n.inputs, input)
	n.mu.Unlock()

	if err := n.fail[input.Category]; err != nil {
		return nil, err
	}
	out := &model.Notification{
		UserID:   input.UserID,
		Title:    input.Title,
		Type:     input.Type,
		Category: input.Category,
		Priority: input.Priority,
	}
	out.ID = uuid.New()
	return out, nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.inputs)
}

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func newEvaluator(n Notifier) *Evaluator {
	return NewEvaluator(n, zerolog.Nop(), metrics.NewNop())
}

func snapshot() *model.MedicalInfo {
	return &model.MedicalInfo{
		PatientID:   uuid.New(),
		OwnerID:     uuid.New(),
		PatientName: "Jane Doe",
		Status:      model.PatientStatusStable,
		DFG:         60,
		Proteinurie: 0.3,
	}
}

func byRule(outcomes []Outcome) map[Rule]Outcome {
	m := make(map[Rule]Outcome, len(outcomes))
	for _, o := range outcomes {
		m[o.Rule] = o
	}
	return m
}

func TestCriticalPatientWithDFGDropRaisesTwoNotifications(t *testing.T) {
	notifier := &recordingNotifier{}
	info := snapshot()
	info.Status = model.PatientStatusCritical
	info.PreviousDFG = intp(100)
	info.DFG = 85

	outcomes := newEvaluator(notifier).Evaluate(context.Background(), info, NewSession())
	require.Len(t, outcomes, 2)

	got := byRule(outcomes)
	status := got[RuleStatusChange]
	require.True(t, status.Delivered())
	assert.Equal(t, "status_critical", status.Key)
	assert.Equal(t, model.NotificationPriorityUrgent, status.Notification.Priority)
	assert.Equal(t, model.NotificationCategoryPatientStatus, status.Notification.Category)

	dfg := got[RuleDFGDrop]
	require.True(t, dfg.Delivered())
	assert.Equal(t, "dfg_decrease_85", dfg.Key)
	assert.Equal(t, model.NotificationPriorityHigh, dfg.Notification.Priority)
	assert.Equal(t, model.NotificationCategoryLabResults, dfg.Notification.Category)
	assert.NotEqual(t, status.Notification.ID, dfg.Notification.ID)

	for _, in := range notifier.inputs {
		assert.Equal(t, info.OwnerID, in.UserID)
		require.NotNil(t, in.PatientID)
		assert.Equal(t, info.PatientID, *in.PatientID)
		assert.True(t, in.ActionRequired)
	}
}

func TestStatusRule(t *testing.T) {
	tests := []struct {
		status   model.PatientStatus
		fires    bool
		priority string
	}{
		{model.PatientStatusCritical, true, model.NotificationPriorityUrgent},
		{model.PatientStatusWorsening, true, model.NotificationPriorityHigh},
		{model.PatientStatusStable, false, ""},
		{model.PatientStatusImproving, false, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			info := snapshot()
			info.Status = tt.status

			c, ok := statusRule(info)
			assert.Equal(t, tt.fires, ok)
			if !tt.fires {
				return
			}
			assert.Equal(t, "status_"+string(tt.status), c.key)
			assert.Equal(t, tt.priority, c.input.Priority)
			require.NotNil(t, c.input.ActionURL)
			assert.Equal(t, "/patients/"+info.PatientID.String(), *c.input.ActionURL)
		})
	}
}

func TestDFGRuleThreshold(t *testing.T) {
	tests := []struct {
		name     string
		previous *int
		current  int
		fires    bool
	}{
		{"no baseline", nil, 10, false},
		{"exactly ninety percent", intp(100), 90, false},
		{"small drop", intp(100), 95, false},
		{"rise", intp(50), 70, false},
		{"just over ten percent", intp(100), 89, true},
		{"large drop", intp(60), 30, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := snapshot()
			info.PreviousDFG = tt.previous
			info.DFG = tt.current

			c, ok := dfgRule(info)
			assert.Equal(t, tt.fires, ok)
			if ok {
				assert.Equal(t, "/patients/"+info.PatientID.String()+"/analyses", *c.input.ActionURL)
				assert.Equal(t, model.NotificationTypeWarning, c.input.Type)
			}
		})
	}
}

func TestDFGRuleNeverFiresAboveNinetyPercent(t *testing.T) {
	for prev := 1; prev <= 150; prev++ {
		for cur := 0; cur <= 160; cur++ {
			info := snapshot()
			info.PreviousDFG = intp(prev)
			info.DFG = cur
			_, ok := dfgRule(info)
			if float64(cur) >= float64(prev)*0.9 {
				require.False(t, ok, "prev=%d cur=%d", prev, cur)
			} else {
				require.True(t, ok, "prev=%d cur=%d", prev, cur)
			}
		}
	}
}

func TestProteinuriaRuleThreshold(t *testing.T) {
	tests := []struct {
		name     string
		previous *float64
		current  float64
		fires    bool
	}{
		{"no baseline", nil, 3, false},
		{"relative rise below floor", floatp(0.4), 0.7, false},
		{"exactly at floor", floatp(0.5), 1.0, false},
		{"exactly one and a half times", floatp(1.0), 1.5, false},
		{"rise above floor", floatp(1.0), 1.6, true},
		{"rise from near zero", floatp(0.2), 1.2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := snapshot()
			info.PreviousProteinurie = tt.previous
			info.Proteinurie = tt.current

			c, ok := proteinuriaRule(info)
			assert.Equal(t, tt.fires, ok)
			if ok {
				assert.Equal(t, model.NotificationCategoryLabResults, c.input.Category)
				assert.Equal(t, model.NotificationPriorityHigh, c.input.Priority)
			}
		})
	}
}

func TestSameValueFiresOncePerSession(t *testing.T) {
	notifier := &recordingNotifier{}
	ev := newEvaluator(notifier)
	session := NewSession()

	info := snapshot()
	info.PreviousDFG = intp(100)
	info.DFG = 80

	require.Len(t, ev.Evaluate(context.Background(), info, session), 1)
	assert.Empty(t, ev.Evaluate(context.Background(), info, session))
	assert.Equal(t, 1, notifier.count())

	// a different value is a new key
	info.DFG = 70
	outcomes := ev.Evaluate(context.Background(), info, session)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "dfg_decrease_70", outcomes[0].Key)

	// a fresh session forgets everything
	info.DFG = 80
	require.Len(t, ev.Evaluate(context.Background(), info, NewSession()), 1)
	assert.Equal(t, 3, notifier.count())
}

func TestFailedDeliveryDoesNotBlockSiblings(t *testing.T) {
	notifier := &recordingNotifier{
		fail: map[string]error{model.NotificationCategoryLabResults: errors.New("insert failed")},
	}
	session := NewSession()

	info := snapshot()
	info.Status = model.PatientStatusWorsening
	info.PreviousDFG = intp(100)
	info.DFG = 50
	info.PreviousProteinurie = floatp(1)
	info.Proteinurie = 2

	outcomes := newEvaluator(notifier).Evaluate(context.Background(), info, session)
	require.Len(t, outcomes, 3)
	assert.Equal(t, 3, notifier.count())

	got := byRule(outcomes)
	assert.True(t, got[RuleStatusChange].Delivered())
	assert.Error(t, got[RuleDFGDrop].Err)
	assert.Error(t, got[RuleProteinuriaRise].Err)

	// failed keys stay claimed
	assert.True(t, session.Fired("dfg_decrease_50"))
	assert.True(t, session.Fired("proteinurie_increase_2"))
}

func TestDeliveriesRunConcurrently(t *testing.T) {
	notifier := &recordingNotifier{delay: 100 * time.Millisecond}

	info := snapshot()
	info.Status = model.PatientStatusCritical
	info.PreviousDFG = intp(100)
	info.DFG = 50
	info.PreviousProteinurie = floatp(1)
	info.Proteinurie = 2

	start := time.Now()
	outcomes := newEvaluator(notifier).Evaluate(context.Background(), info, NewSession())
	elapsed := time.Since(start)

	require.Len(t, outcomes, 3)
	assert.Less(t, elapsed, 250*time.Millisecond)
}

type panickingNotifier struct{}

func (panickingNotifier) Create(context.Context, model.CreateNotificationInput) (*model.Notification, error) {
	panic("boom")
}

func TestPanickingDeliveryIsContained(t *testing.T) {
	info := snapshot()
	info.Status = model.PatientStatusCritical

	outcomes := newEvaluator(panickingNotifier{}).Evaluate(context.Background(), info, NewSession())
	require.Len(t, outcomes, 1)
	assert.ErrorIs(t, outcomes[0].Err, errPanicked)
}

func TestNothingQualifies(t *testing.T) {
	notifier := &recordingNotifier{}
	assert.Empty(t, newEvaluator(notifier).Evaluate(context.Background(), snapshot(), nil))
	assert.Zero(t, notifier.count())
}
