package outlook

import (
	"fmt"
	"strings"
)

const (
	selBody            = "body"
	selMain            = "[role='main']"
	selAcceptCookies   = "xpath=//button[contains(text(), 'Accept')]"
	selPassword        = "input[name='passwd']"
	selSubmit          = "#idSIButton9"
	selProofUp         = "#idSubmit_ProofUp_Redirect"
	selSkipSetup       = "xpath=//button[normalize-space()='Skip setup']"
	selDialog          = "xpath=//div[@role='dialog']"
	selRow             = "xpath=//div[@role='option' and @data-convid]"
	selListbox         = "xpath=//div[@role='listbox']"
	selReport          = "xpath=//button[normalize-space()='Report']"
	selOK              = "xpath=//button[normalize-space()='OK']"
	selInbox           = "xpath=//span[normalize-space()='Inbox']"
	selJunkFolder      = "xpath=//span[normalize-space()='Junk Email']"
	selSender          = "xpath=.//span[@title]"
	selReportDropdown  = "xpath=//button[contains(@class, 'splitMenuButton') and @aria-label='Expand to see more report options']"
	selNotJunk         = "xpath=//*[(@role='menuitem' or @role='option') and contains(., 'Not junk')]"
	selInboxTreeItem   = "xpath=//div[@role='treeitem' and .//span[text()='Inbox']]"
	selEmptyMenuItem   = "xpath=//div[@role='menuitem' and .//span[text()='Empty']]"
	selDeleteAllButton = "xpath=//button[normalize-space()='Delete all']"
)

var (
	signInSelectors = []string{
		"xpath=//a[contains(text(), 'Sign in')]",
		"xpath=//a[contains(@class, 'signInLink')]",
		"xpath=//a[@data-task='signin']",
		"xpath=//span[contains(text(), 'Sign in')]/parent::*",
		"xpath=//div[contains(@class, 'SignIn')]//a",
		"xpath=//a[@role='button' and contains(., 'Sign in')]",
		"xpath=//a[@aria-label='Sign in']",
	}
	emailInputSelectors = []string{
		"input[name='loginfmt']",
		"input[type='email']",
		"xpath=//input[@type='email' or @name='loginfmt']",
	}
	nextSelectors = []string{
		selSubmit,
		"xpath=//input[@type='submit']",
		"xpath=//button[contains(text(), 'Next')]",
	}
)

func selTab(name string) string {
	return fmt.Sprintf("xpath=//button[normalize-space()=%s]", xpathLiteral(name))
}

func selRowByID(convID string) string {
	return fmt.Sprintf("xpath=//div[@role='option' and @data-convid=%s]", xpathLiteral(convID))
}

// xpathLiteral quotes s for use inside an XPath 1.0 expression, which has
// no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(quoted, `, "'", `) + ")"
}
