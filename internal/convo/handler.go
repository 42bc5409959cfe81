// Package convo drives the WhatsApp conversation: onboarding a caregiver
// over three questions, then serving plan/status/update commands. Replies
// are returned to the webhook handler, which wraps them in TwiML.
package convo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/ValenteCreativo/carepilot/internal/actions"
	"github.com/ValenteCreativo/carepilot/internal/pipeline"
	"github.com/ValenteCreativo/carepilot/internal/prompt"
	"github.com/ValenteCreativo/carepilot/internal/storage"
)

// Handler processes one inbound WhatsApp message at a time. The plan
// pipeline runs inline in the webhook request; slow, but the reply always
// reflects the finished plan.
type Handler struct {
	store        *storage.Store
	orchestrator *pipeline.Orchestrator
	generator    *actions.Generator
	executor     *actions.Executor
	logger       *slog.Logger
}

func NewHandler(store *storage.Store, orch *pipeline.Orchestrator, gen *actions.Generator, exec *actions.Executor) *Handler {
	return &Handler{
		store:        store,
		orchestrator: orch,
		generator:    gen,
		executor:     exec,
		logger:       slog.Default(),
	}
}

// Inbound is one webhook delivery after form parsing.
type Inbound struct {
	From       string // whatsapp:+E.164
	Body       string
	MessageSid string
	RawForm    string // url-encoded form, kept for audit
}

const (
	askSituation = "Hi, I'm CarePilot. I help family caregivers build a realistic weekly care plan. Tell me about your situation: who are you caring for, and what's hardest right now?"
	askTime      = "Thank you for sharing that. Roughly how many hours per week can you dedicate to caregiving tasks?"
	askBudget    = "Got it. And what weekly budget (in USD) can you put toward outside help or services? A rough number is fine."
	helpText     = "Commands: 'plan' shows your current plan, 'status' shows your scheduled actions, 'update <text>' tells me what changed so I can rebuild the plan. Anything else you write is treated as an update."
)

var numberRe = regexp.MustCompile(`\d+(?:\.\d+)?`)

// HandleInbound returns the reply body for one inbound message. Redelivery
// of an already-answered provider message id replays the stored reply
// without touching the pipeline. A logged inbound with no stored reply
// means the previous attempt died mid-request; that delivery is
// reprocessed, not replayed.
func (h *Handler) HandleInbound(ctx context.Context, in Inbound) (string, error) {
	alreadyLogged := false
	if in.MessageSid != "" {
		if _, err := h.store.GetInboundByProviderID(in.MessageSid); err == nil {
			prior, err := h.store.GetReplyTo(in.MessageSid)
			if err == nil {
				h.logger.Info("replaying reply for redelivered message", "message_sid", in.MessageSid)
				return prior.Body, nil
			}
			if err != storage.ErrNotFound {
				return "", fmt.Errorf("looking up prior reply: %w", err)
			}
			h.logger.Info("reprocessing redelivered message with no stored reply", "message_sid", in.MessageSid)
			alreadyLogged = true
		} else if err != storage.ErrNotFound {
			return "", err
		}
	}

	if !alreadyLogged {
		if err := h.logMessage(in.From, storage.DirectionIn, in.Body, in.MessageSid, "", in.RawForm); err != nil {
			return "", fmt.Errorf("logging inbound: %w", err)
		}
	}

	reply, err := h.route(ctx, in)
	if err != nil {
		return "", err
	}

	if err := h.logMessage(in.From, storage.DirectionOut, reply, "", in.MessageSid, ""); err != nil {
		return "", fmt.Errorf("logging reply: %w", err)
	}
	return reply, nil
}

func (h *Handler) route(ctx context.Context, in Inbound) (string, error) {
	user, err := h.store.GetUserByPhone(in.From)
	if err == storage.ErrNotFound {
		user = storage.User{
			ID:              uuid.NewString(),
			Phone:           in.From,
			OnboardingState: storage.OnboardingAwaitingSituation,
			CreatedAt:       time.Now().UTC(),
		}
		if err := h.store.CreateUser(user); err != nil {
			return "", fmt.Errorf("creating user: %w", err)
		}
		return askSituation, nil
	}
	if err != nil {
		return "", err
	}

	var obCtx storage.OnboardingContext
	if user.OnboardingCtx != "" {
		if err := json.Unmarshal([]byte(user.OnboardingCtx), &obCtx); err != nil {
			return "", fmt.Errorf("decoding onboarding context: %w", err)
		}
	}

	switch user.OnboardingState {
	case storage.OnboardingNotStarted:
		// Web-registered user texting in for the first time: ask the
		// situation question, do not treat this message as the answer.
		if err := h.saveOnboarding(user.ID, storage.OnboardingAwaitingSituation, obCtx); err != nil {
			return "", err
		}
		return askSituation, nil

	case storage.OnboardingAwaitingSituation:
		obCtx.Situation = strings.TrimSpace(in.Body)
		if err := h.saveOnboarding(user.ID, storage.OnboardingAwaitingTime, obCtx); err != nil {
			return "", err
		}
		return askTime, nil

	case storage.OnboardingAwaitingTime:
		obCtx.TimeText = strings.TrimSpace(in.Body)
		if err := h.saveOnboarding(user.ID, storage.OnboardingAwaitingBudget, obCtx); err != nil {
			return "", err
		}
		return askBudget, nil

	case storage.OnboardingAwaitingBudget:
		obCtx.BudgetText = strings.TrimSpace(in.Body)
		return h.finishOnboarding(ctx, user, obCtx)

	case storage.OnboardingActive:
		return h.command(ctx, user, in.Body)

	default:
		return "", fmt.Errorf("unknown onboarding state %q for user %s", user.OnboardingState, user.ID)
	}
}

// finishOnboarding creates the case from the collected answers, builds the
// first plan inline and auto-approves its scheduled actions so check-ins
// start flowing without a dashboard visit.
func (h *Handler) finishOnboarding(ctx context.Context, user storage.User, obCtx storage.OnboardingContext) (string, error) {
	now := time.Now().UTC()
	c := storage.Case{
		ID:               uuid.NewString(),
		UserID:           user.ID,
		SituationType:    "general",
		Summary:          obCtx.Situation,
		ConstraintFlags:  "[]",
		RiskFlags:        "[]",
		TimePerWeekHours: firstNumber(obCtx.TimeText, 5),
		BudgetPerWeekUSD: firstNumber(obCtx.BudgetText, 50),
		Energy:           3,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := h.store.CreateCase(c); err != nil {
		return "", fmt.Errorf("creating case: %w", err)
	}
	if err := h.saveOnboarding(user.ID, storage.OnboardingActive, obCtx); err != nil {
		return "", err
	}

	doc, err := h.buildPlan(ctx, c, user.Phone)
	if err != nil {
		return "", err
	}
	return "Your first 7-day care plan is ready.\n\n" + summarize(doc) +
		"\n\nI'll check in with you daily at 8pm. Reply 'help' to see what else I can do.", nil
}

func (h *Handler) command(ctx context.Context, user storage.User, body string) (string, error) {
	cases, err := h.store.ListCasesByUser(user.ID)
	if err != nil {
		return "", err
	}
	if len(cases) == 0 {
		return "I don't have a care situation on file for you yet. Tell me about who you're caring for and I'll set one up.", nil
	}
	c := cases[0] // newest first

	cmd := strings.ToLower(strings.TrimSpace(body))
	switch {
	case cmd == "help":
		return helpText, nil

	case cmd == "plan":
		p, err := h.store.LatestPlan(c.ID)
		if err == storage.ErrNotFound {
			return "No plan yet. Send 'update' with anything that changed and I'll build one.", nil
		}
		if err != nil {
			return "", err
		}
		var doc pipeline.PlanDoc
		if err := json.Unmarshal([]byte(p.Doc), &doc); err != nil {
			return "", fmt.Errorf("decoding plan %s: %w", p.ID, err)
		}
		return summarize(doc), nil

	case cmd == "status":
		list, err := h.store.ListActionsByCase(c.ID)
		if err != nil {
			return "", err
		}
		counts := map[storage.ActionStatus]int{}
		for _, a := range list {
			counts[a.Status]++
		}
		return fmt.Sprintf("Scheduled actions: %d total (%d pending, %d approved, %d completed, %d failed).",
			len(list), counts[storage.ActionPending], counts[storage.ActionApproved],
			counts[storage.ActionCompleted], counts[storage.ActionFailed]), nil

	default:
		// "update <text>" and bare free text both mean the situation
		// changed: fold it into the summary and rebuild the plan.
		text := strings.TrimSpace(body)
		if strings.HasPrefix(cmd, "update") {
			text = strings.TrimSpace(text[len("update"):])
			if text == "" {
				return "Tell me what changed, e.g. 'update mom was discharged from the hospital'.", nil
			}
		}
		c.Summary = c.Summary + "\nUpdate: " + text
		c.UpdatedAt = time.Now().UTC()
		if err := h.store.UpdateCase(c); err != nil {
			return "", fmt.Errorf("updating case: %w", err)
		}
		doc, err := h.buildPlan(ctx, c, user.Phone)
		if err != nil {
			return "", err
		}
		return "Updated your plan.\n\n" + summarize(doc), nil
	}
}

// buildPlan runs the full generation pipeline for a case and schedules its
// actions, auto-approving them since the caregiver asked over chat.
func (h *Handler) buildPlan(ctx context.Context, c storage.Case, phone string) (pipeline.PlanDoc, error) {
	res, err := h.orchestrator.Generate(ctx, pipeline.GenerateInput{
		CaseID: c.ID,
		Ctx:    caseContext(c),
	})
	if err != nil {
		return pipeline.PlanDoc{}, fmt.Errorf("generating plan: %w", err)
	}
	ids, err := h.generator.GenerateFromPlan(actions.GenerateInput{
		CaseID:         c.ID,
		PlanID:         res.PlanID,
		Plan:           res.Plan,
		CaregiverPhone: phone,
	})
	if err != nil {
		return pipeline.PlanDoc{}, fmt.Errorf("scheduling actions: %w", err)
	}
	for _, id := range ids {
		if !h.executor.Approve(id) {
			h.logger.Warn("auto-approve did not apply", "action_id", id)
		}
	}
	return res.Plan, nil
}

func (h *Handler) saveOnboarding(userID string, state storage.OnboardingState, obCtx storage.OnboardingContext) error {
	blob, err := json.Marshal(obCtx)
	if err != nil {
		return err
	}
	if err := h.store.UpdateOnboarding(userID, state, string(blob)); err != nil {
		return fmt.Errorf("saving onboarding state: %w", err)
	}
	return nil
}

func (h *Handler) logMessage(phone string, dir storage.Direction, body, providerID, inReplyTo, raw string) error {
	return h.store.LogMessage(storage.Message{
		ID:                ulid.Make().String(),
		Phone:             phone,
		Direction:         dir,
		Body:              body,
		ProviderMessageID: providerID,
		InReplyTo:         inReplyTo,
		Raw:               raw,
		CreatedAt:         time.Now().UTC(),
	})
}

func caseContext(c storage.Case) prompt.CaseContext {
	return prompt.CaseContext{
		SituationType:    c.SituationType,
		Summary:          c.Summary,
		ConstraintFlags:  decodeFlags(c.ConstraintFlags),
		RiskFlags:        decodeFlags(c.RiskFlags),
		TimePerWeekHours: c.TimePerWeekHours,
		BudgetPerWeekUSD: c.BudgetPerWeekUSD,
		Distance:         c.Distance,
		Energy:           c.Energy,
		SupportNetwork:   c.SupportNetwork,
		HardLimits:       c.HardLimits,
	}
}

func decodeFlags(raw string) []string {
	var flags []string
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &flags); err != nil {
		return nil
	}
	return flags
}

// firstNumber pulls the first numeric token out of free text ("about 6
// hours maybe" -> 6). Caregivers rarely answer with a bare number.
func firstNumber(text string, def float64) float64 {
	m := numberRe.FindString(text)
	if m == "" {
		return def
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return def
	}
	return v
}

func summarize(doc pipeline.PlanDoc) string {
	var sb strings.Builder
	sb.WriteString("This week's focus:\n")
	for _, g := range doc.Goals {
		fmt.Fprintf(&sb, "- %s\n", g.Title)
	}
	sb.WriteString("\nActions:\n")
	for i, a := range doc.Actions {
		fmt.Fprintf(&sb, "%d. %s (%d min", i+1, a.Title, a.TimeMinutes)
		if a.CostUSD > 0 {
			fmt.Fprintf(&sb, ", $%.0f", a.CostUSD)
		}
		sb.WriteString(")\n")
	}
	fmt.Fprintf(&sb, "\nTotal: %d minutes, $%.0f.", doc.TotalTimeMinutes(), doc.TotalCostUSD())
	if len(doc.SafetyNotes) > 0 {
		sb.WriteString("\nNote: " + strings.Join(doc.SafetyNotes, " "))
	}
	return sb.String()
}
