package llm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/RichardoC/mintchat/internal/models"
)

// Persona configures the assistant character. The stances below are passed
// to the model as instructions; nothing here enforces them in code.
type Persona struct {
	Name               string
	Bilingual          bool
	DesignatedContract string
	DesignatedStance   string
}

var toneRules = map[models.Locale]string{
	models.LocaleEnglish: "Reply in English. Keep it casual, witty and short: two or three paragraphs at most. Light crypto slang is fine, jargon walls are not.",
	models.LocaleChinese: "请使用简体中文回答。语气轻松幽默、简洁明了，最多两三段。可以适度使用币圈用语，但不要堆砌术语。",
}

const bilingualRule = "Reply bilingually: first in English, then the same content in Simplified Chinese, separated by a blank line."

// SystemPrompt builds the system instruction for locale.
func (p Persona) SystemPrompt(locale models.Locale) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, a friendly on-chain token analyst living inside a chat widget.\n\n", p.Name)
	b.WriteString("Rules you always follow:\n")
	b.WriteString("- End every answer that touches a token, trade or investment with a short risk disclaimer: this is not financial advice and users should do their own research.\n")
	b.WriteString("- Never state or guess prices, market caps or price targets. Only use numbers that appear in the data you are given.\n")
	b.WriteString("- If asked whether something is a scam, explain that you cannot certify any project, point to observable on-chain signals such as holder concentration, and remind the user to verify independently.\n")
	b.WriteString("- If asked what model or AI you are, say you are " + p.Name + " and that you do not discuss the technology behind you.\n")
	if p.DesignatedContract != "" {
		stance := p.DesignatedStance
		if stance == "" {
			stance = "it is the official project token; still apply the usual risk disclaimer"
		}
		fmt.Fprintf(&b, "- If the user mentions the contract address %s, say %s.\n", p.DesignatedContract, stance)
	}
	b.WriteString("\n")

	if p.Bilingual {
		b.WriteString(bilingualRule)
	} else {
		tone, ok := toneRules[locale]
		if !ok {
			tone = toneRules[models.DefaultLocale]
		}
		b.WriteString(tone)
	}
	return b.String()
}

// AnalysisPrompt is the user-role instruction carrying the snapshot facts.
func AnalysisPrompt(snap *models.TokenSnapshot) string {
	var b strings.Builder

	b.WriteString("Analyze this token using only the on-chain data below.\n\n")
	fmt.Fprintf(&b, "Mint: %s\n", snap.Mint)
	fmt.Fprintf(&b, "Decimals: %d\n", snap.Decimals)
	fmt.Fprintf(&b, "Total supply: %s (raw %s)\n", supplyString(snap), snap.RawAmount)
	fmt.Fprintf(&b, "Captured at: %s\n\n", snap.LastUpdated.Format("2006-01-02 15:04:05 MST"))

	if len(snap.LargestHolders) == 0 {
		b.WriteString("Largest holders: none reported.\n")
	} else {
		b.WriteString("Largest holders:\n")
		var topShare float64
		for i, h := range snap.LargestHolders {
			owner := "unknown"
			if h.Owner != nil {
				owner = *h.Owner
			}
			amount := h.UIAmountString
			if amount == "" {
				amount = h.Amount
			}
			share := holderShare(h, snap.Supply)
			topShare += share
			fmt.Fprintf(&b, "%d. account %s, owner %s, amount %s", i+1, h.Address, owner, amount)
			if snap.Supply > 0 {
				fmt.Fprintf(&b, " (%.2f%% of supply)", share)
			}
			b.WriteString("\n")
		}
		if snap.Supply > 0 {
			fmt.Fprintf(&b, "Top %d holders together: %.2f%% of supply.\n", len(snap.LargestHolders), topShare)
		}
	}

	b.WriteString("\nDescribe how concentrated the holdings are and what that means for risk, ")
	b.WriteString("mention if several top accounts share an owner, and finish with a risk disclaimer. ")
	b.WriteString("Do not mention any price.")
	return b.String()
}

func supplyString(snap *models.TokenSnapshot) string {
	if snap.UIAmountString != "" {
		return snap.UIAmountString
	}
	return strconv.FormatFloat(snap.Supply, 'f', -1, 64)
}

func holderShare(h models.HolderRecord, supply float64) float64 {
	if supply <= 0 {
		return 0
	}
	return h.UIAmount / supply * 100
}
