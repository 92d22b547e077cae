package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/prepbrain/prepdeck/internal/controlplane"
	"github.com/prepbrain/prepdeck/internal/state"
)

// RenderMarkdown renders brain answers and drafts with Glamour. It falls
// back to the raw text when rendering fails.
func RenderMarkdown(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

func tabLabel(t state.Tab) string {
	s := string(t)
	return strings.ToUpper(s[:1]) + s[1:]
}

func renderTabs(active state.Tab, theme Theme) string {
	parts := make([]string, 0, len(state.Tabs)+1)
	parts = append(parts, theme.TitleStyle.Render("PREPDECK "))
	for _, t := range state.Tabs {
		style := theme.InactiveTabStyle
		if t == active {
			style = theme.ActiveTabStyle
		}
		parts = append(parts, style.Render(tabLabel(t)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func renderBanner(b state.Banner, theme Theme) string {
	switch b.Kind {
	case state.BannerError:
		return theme.ErrorStyle.Render("✗ " + b.Text)
	case state.BannerNotice:
		return theme.NoticeStyle.Render("→ " + b.Text)
	}
	return ""
}

// renderSidebar shows service health and telemetry on every tab.
func renderSidebar(s state.State, theme Theme, busy bool, spin string) string {
	var sb strings.Builder
	sb.WriteString(theme.TitleStyle.Render("STATUS"))
	sb.WriteString("\n")

	st := s.Status
	if st == nil {
		sb.WriteString(theme.MutedStyle.Render("waiting for control plane"))
		return sb.String()
	}

	service := func(name string, running bool, label string) {
		mark := theme.ErrorStyle.Render("●")
		if running {
			mark = theme.SuccessStyle.Render("●")
		}
		fmt.Fprintf(&sb, "%s %-7s %s\n", mark, name, label)
	}
	botLabel := st.Bot.Status
	if st.Bot.PID != nil {
		botLabel = fmt.Sprintf("%s (%d)", botLabel, *st.Bot.PID)
	}
	service("Bot", st.Bot.Running, botLabel)
	service("Ollama", st.Ollama.Running, st.Ollama.Status)
	sb.WriteString("\n")

	tel := st.Telemetry
	fmt.Fprintf(&sb, "Signal   %s\n", signalBar(tel.Signal))
	if tel.Battery != nil {
		fmt.Fprintf(&sb, "Battery  %d%%\n", *tel.Battery)
	}
	if tel.CoreTemp != nil {
		est := ""
		if tel.CoreTempEstimated {
			est = " est."
		}
		fmt.Fprintf(&sb, "Core     %.1f°C%s\n", *tel.CoreTemp, est)
	}
	fmt.Fprintf(&sb, "Position %s\n", tel.Position)
	fmt.Fprintf(&sb, "Uptime   %s\n", formatUptime(st.UptimeSeconds))

	if busy {
		sb.WriteString("\n" + spin + " working")
	}
	if at, ok := s.LastLoaded[state.DomainStatus]; ok {
		sb.WriteString("\n" + theme.MutedStyle.Render("updated "+at.Format("15:04:05")))
	}
	return sb.String()
}

func signalBar(pct int) string {
	filled := int(math.Round(float64(max(0, min(pct, 100))) / 20))
	return strings.Repeat("▮", filled) + strings.Repeat("▯", 5-filled) + fmt.Sprintf(" %d%%", pct)
}

func formatUptime(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	return fmt.Sprintf("%dm%02ds", m, int(d.Seconds())%60)
}

func renderTab(s state.State, cursor, width int, theme Theme) string {
	switch s.ActiveTab {
	case state.TabOverview:
		return renderLogs(s.Logs, theme)
	case state.TabSessions:
		return renderSessions(s, cursor, theme)
	case state.TabKnowledge:
		return renderKnowledge(s.Knowledge, cursor, theme)
	case state.TabSettings:
		return renderSettings(s, cursor, theme)
	case state.TabVendors:
		return renderVendors(s, cursor, theme)
	case state.TabRecipes:
		return renderRecipes(s.Recipes)
	case state.TabInventory:
		return renderInventory(s.Inventory)
	case state.TabMenu:
		return renderMenu(s.Menu, theme)
	case state.TabAutonomy:
		return renderAutonomy(s, theme)
	case state.TabSystem:
		return renderSystem(s.System)
	case state.TabLab:
		return renderLab(s, width, theme)
	}
	return ""
}

func pointer(selected bool, theme Theme) string {
	if selected {
		return theme.CursorStyle.Render("▸ ")
	}
	return "  "
}

func empty(theme Theme, what string) string {
	return theme.MutedStyle.Render("No " + what + " yet.")
}

func renderLogs(logs []controlplane.LogEntry, theme Theme) string {
	if len(logs) == 0 {
		return empty(theme, "log lines")
	}
	var sb strings.Builder
	for _, e := range logs {
		line := e.Raw
		if line == "" {
			line = e.Message
		}
		upper := strings.ToUpper(line)
		switch {
		case strings.Contains(upper, "ERROR"):
			line = theme.ErrorStyle.Render(line)
		case strings.Contains(upper, "WARNING"):
			line = theme.WarningStyle.Render(line)
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func renderSessions(s state.State, cursor int, theme Theme) string {
	if len(s.Sessions) == 0 {
		return empty(theme, "sessions")
	}
	var sb strings.Builder
	for i, sess := range s.Sessions {
		sel := s.SelectedSession != nil && *s.SelectedSession == sess.ID
		name := sess.DisplayName
		if sel {
			name = theme.TitleStyle.Render(name)
		}
		fmt.Fprintf(&sb, "%s%-24s %3d msgs  %s\n", pointer(i == cursor, theme), name, sess.MessageCount, sess.CreatedAt)
	}
	if s.SelectedSession != nil {
		sb.WriteString("\n")
		for _, m := range s.Messages {
			fmt.Fprintf(&sb, "%s %s\n", theme.MutedStyle.Render("["+m.Role+"]"), m.Content)
		}
	}
	return sb.String()
}

func renderKnowledge(sources []controlplane.KnowledgeSource, cursor int, theme Theme) string {
	if len(sources) == 0 {
		return empty(theme, "knowledge sources")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "  %-28s %-8s %6s  %-10s %s\n", "TITLE", "STATUS", "CHUNKS", "PROFILE", "FLAGS")
	for i, k := range sources {
		var flags []string
		if k.OCRApplied {
			flags = append(flags, "ocr")
		} else if k.OCRRequired {
			flags = append(flags, "needs-ocr")
		}
		if !k.CanToggle {
			flags = append(flags, "locked")
		}
		if len(k.Warnings) > 0 {
			flags = append(flags, fmt.Sprintf("%d warn", len(k.Warnings)))
		}
		status := theme.SuccessStyle.Render(fmt.Sprintf("%-8s", k.Status))
		if !k.Active() {
			status = theme.MutedStyle.Render(fmt.Sprintf("%-8s", k.Status))
		}
		fmt.Fprintf(&sb, "%s%-28s %s %6d  %-10s %s\n",
			pointer(i == cursor, theme), truncate(k.Title, 28), status, k.ChunkCount, k.TextProfileLabel, strings.Join(flags, ","))
	}
	return sb.String()
}

// settingField is one editable row of the settings tab.
type settingField struct {
	label  string
	value  func(state.ConfigDraft) string
	adjust func(*state.ConfigDraft, int)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

var settingFields = []settingField{
	{"Model", func(d state.ConfigDraft) string { return d.Model }, nil},
	{"Temperature", func(d state.ConfigDraft) string { return fmt.Sprintf("%.1f", d.Temperature) },
		func(d *state.ConfigDraft, n int) {
			d.Temperature = math.Round(max(0, min(d.Temperature+0.1*float64(n), 2))*10) / 10
		}},
	{"Max tokens", func(d state.ConfigDraft) string { return fmt.Sprint(d.MaxTokens) },
		func(d *state.ConfigDraft, n int) { d.MaxTokens = max(64, d.MaxTokens+128*n) }},
	{"Top K", func(d state.ConfigDraft) string { return fmt.Sprint(d.TopK) },
		func(d *state.ConfigDraft, n int) { d.TopK = max(1, min(d.TopK+n, 20)) }},
	{"RAG", func(d state.ConfigDraft) string { return onOff(d.RAGEnabled) },
		func(d *state.ConfigDraft, _ int) { d.RAGEnabled = !d.RAGEnabled }},
	{"OCR", func(d state.ConfigDraft) string { return onOff(d.OCREnabled) },
		func(d *state.ConfigDraft, _ int) { d.OCREnabled = !d.OCREnabled }},
	{"Vision", func(d state.ConfigDraft) string { return onOff(d.VisionEnabled) },
		func(d *state.ConfigDraft, _ int) { d.VisionEnabled = !d.VisionEnabled }},
	{"Extract images", func(d state.ConfigDraft) string { return onOff(d.ExtractImages) },
		func(d *state.ConfigDraft, _ int) { d.ExtractImages = !d.ExtractImages }},
}

func renderSettings(s state.State, cursor int, theme Theme) string {
	if s.ConfigData == nil {
		return empty(theme, "settings loaded")
	}
	var sb strings.Builder
	for i, f := range settingFields {
		fmt.Fprintf(&sb, "%s%-16s %s\n", pointer(i == cursor, theme), f.label, f.value(s.Draft))
	}
	sb.WriteString("\n")
	if s.DraftDirty {
		sb.WriteString(theme.WarningStyle.Render("unsaved changes: w to save, u to discard"))
	} else {
		sb.WriteString(theme.MutedStyle.Render("in sync with server"))
	}
	return sb.String()
}

func renderVendors(s state.State, cursor int, theme Theme) string {
	if len(s.Vendors) == 0 {
		return empty(theme, "vendors")
	}
	var sb strings.Builder
	for i, v := range s.Vendors {
		name := v.Name
		if v.ID != nil && s.SelectedVendor != nil && *v.ID == *s.SelectedVendor {
			name = theme.TitleStyle.Render(name)
		}
		fmt.Fprintf(&sb, "%s%-26s %-28s cutoff %s\n", pointer(i == cursor, theme), name, v.Email, v.CutoffTime)
	}
	if s.SelectedVendor != nil {
		sb.WriteString("\n")
		for _, it := range s.VendorItems {
			price := "-"
			if it.Price != nil {
				price = fmt.Sprintf("$%.2f", *it.Price)
			}
			fmt.Fprintf(&sb, "  %-22s %-6s %-10s %8s\n", it.Name, it.Unit, it.Category, price)
		}
	}
	return sb.String()
}

func renderRecipes(recipes []controlplane.Recipe) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-24s %8s %8s %8s %8s\n", "RECIPE", "ON HAND", "PAR", "PRICE", "COST")
	for _, r := range recipes {
		mark := " "
		if r.OnHand < r.ParLevel {
			mark = "!"
		}
		fmt.Fprintf(&sb, "%-24s %7.1f%s %8.1f %8.2f %8.2f\n", truncate(r.Name, 24), r.OnHand, mark, r.ParLevel, r.SalesPrice, r.EstimatedCost)
	}
	return sb.String()
}

func renderInventory(items []controlplane.InventoryItem) string {
	var sb strings.Builder
	category := ""
	for _, it := range items {
		if it.Category != category {
			category = it.Category
			fmt.Fprintf(&sb, "\n%s\n", strings.ToUpper(orDash(category)))
		}
		fmt.Fprintf(&sb, "  [ ] %-24s %s\n", it.Name, it.Unit)
	}
	return strings.TrimLeft(sb.String(), "\n")
}

func renderMenu(menu *controlplane.MenuEngineering, theme Theme) string {
	if menu == nil || len(menu.Items) == 0 {
		return empty(theme, "menu data")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-24s %8s %8s %6s  %s\n", "ITEM", "MARGIN", "MARGIN%", "SOLD", "CLASS")
	for _, it := range menu.Items {
		class := it.Classification
		switch class {
		case "Star":
			class = theme.SuccessStyle.Render(class)
		case "Dog":
			class = theme.ErrorStyle.Render(class)
		}
		fmt.Fprintf(&sb, "%-24s %8.2f %7.1f%% %6d  %s\n", truncate(it.Name, 24), it.Margin, it.MarginPC, it.Count, class)
	}
	fmt.Fprintf(&sb, "\navg margin %.2f  avg sold %.1f\n", menu.Averages.Margin, menu.Averages.Count)
	return sb.String()
}

func renderAutonomy(s state.State, theme Theme) string {
	a := s.Autonomy
	if a == nil {
		return empty(theme, "autonomy status")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Status     %s\n", a.Status)
	fmt.Fprintf(&sb, "Last tick  %s %s\n", orDash(a.LastTickAt), a.LastAction)
	fmt.Fprintf(&sb, "Errors     %d\n", a.ErrorCount)
	if a.LastError != "" {
		sb.WriteString(theme.ErrorStyle.Render("Last error "+a.LastError) + "\n")
	}
	sb.WriteString("\n")
	for _, e := range s.AutonomyLogs {
		fmt.Fprintf(&sb, "%s  %-12s %s\n", e.CreatedAt, e.Action, e.Detail)
	}
	return sb.String()
}

func renderSystem(info *controlplane.SystemInfo) string {
	if info == nil {
		return ""
	}
	return fmt.Sprintf("Runtime   %s\nPlatform  %s\nStarted   %s\nCWD       %s\n",
		info.RuntimeVersion, info.Platform, time.Unix(info.APIStartedAt, 0).Format(time.DateTime), info.CWD)
}

func renderLab(s state.State, width int, theme Theme) string {
	var sb strings.Builder
	if s.BrainAnswer != "" {
		sb.WriteString(theme.TitleStyle.Render("BRAIN") + "\n")
		sb.WriteString(RenderMarkdown(s.BrainAnswer, width) + "\n\n")
	}
	if d := s.EmailDraft; d != nil {
		sb.WriteString(theme.TitleStyle.Render("DRAFT") + "\n")
		md := fmt.Sprintf("**To:** %s  \n**Subject:** %s\n\n%s", orDash(d.VendorEmail), d.Subject, d.Body)
		sb.WriteString(RenderMarkdown(md, width) + "\n\n")
	}
	if s.Transcript != "" {
		sb.WriteString(theme.TitleStyle.Render("TRANSCRIPT") + "\n" + s.Transcript + "\n")
	}
	if sb.Len() == 0 {
		return theme.MutedStyle.Render("Press / to ask the brain. Prefix with \"draft:\" to write to the selected vendor.")
	}
	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
