package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>",
	Short: "Upload a PDF document for indexing",
	Long: `Upload a PDF document for indexing.

Examples:
  expertmind upload ./handbook.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Uploading %s...", args[0])
		resp, err := client.postFile(cmd.Context(), "/api/upload", args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued document %s (%s)", result["id"], result["filename"])
		printStatus("Status", "%s", result["status"])
		return nil
	},
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about a document",
	Long: `Ask a question about an indexed document. Without --doc the server
routes the question to whichever document matches it best.

Examples:
  expertmind ask "What is the refund policy?"
  expertmind ask --doc 4f1c... "What is the refund policy?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		docID, _ := cmd.Flags().GetString("doc")
		question := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/ask", map[string]string{
			"document_id": docID,
			"question":    question,
		})
		if err != nil {
			return err
		}

		var answer struct {
			Text          string `json:"answer"`
			IsFromLearned bool   `json:"is_from_learned"`
			SourcePage    int    `json:"source_page"`
			SourceText    string `json:"source_content"`
			DurationMs    int64  `json:"duration_ms"`
		}
		if err := decodeJSON(resp, &answer); err != nil {
			return err
		}

		fmt.Println(answer.Text)
		if answer.IsFromLearned {
			printStatus("Source", "learned knowledge")
		} else if answer.SourcePage > 0 {
			printStatus("Source", "page %d", answer.SourcePage)
		}
		printStatus("Took", "%dms", answer.DurationMs)
		return nil
	},
}

func init() {
	askCmd.Flags().String("doc", "", "document ID to ask about (default: best match)")
}

// --- docs ---

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage uploaded documents",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/documents")
		if err != nil {
			return err
		}

		var docs []struct {
			ID       string `json:"id"`
			Filename string `json:"filename"`
			Pages    int    `json:"pages"`
			Status   string `json:"status"`
			Passages int    `json:"passages"`
		}
		if err := decodeJSON(resp, &docs); err != nil {
			return err
		}

		if len(docs) == 0 {
			fmt.Println("No documents uploaded.")
			return nil
		}

		for _, d := range docs {
			fmt.Printf("%s  %-10s  %3d pages  %4d passages  %s\n",
				colorize(colorCyan, d.ID[:8]),
				d.Status,
				d.Pages,
				d.Passages,
				d.Filename,
			)
		}
		return nil
	},
}

var docsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document and everything learned from it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/api/documents/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted document %s", args[0])
		return nil
	},
}

func init() {
	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsDeleteCmd)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show or clear chat history for a document",
}

var historyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show recent chat history",
	RunE: func(cmd *cobra.Command, args []string) error {
		docID, _ := cmd.Flags().GetString("doc")
		limit, _ := cmd.Flags().GetInt("limit")
		if docID == "" {
			return fmt.Errorf("--doc is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/api/history?document_id=%s&limit=%d", url.QueryEscape(docID), limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var messages []struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &messages); err != nil {
			return err
		}

		if len(messages) == 0 {
			fmt.Println("No history for this document.")
			return nil
		}

		for _, m := range messages {
			role := m.Role
			if role == "user" {
				role = colorize(colorBold, "you")
			}
			content := m.Content
			if len(content) > 200 {
				content = content[:200] + "..."
			}
			fmt.Printf("%s  %s\n  %s\n", m.CreatedAt, role, content)
		}
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear chat history for a document",
	RunE: func(cmd *cobra.Command, args []string) error {
		docID, _ := cmd.Flags().GetString("doc")
		if docID == "" {
			return fmt.Errorf("--doc is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/api/history?document_id="+url.QueryEscape(docID))
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("History cleared")
		return nil
	},
}

func init() {
	historyShowCmd.Flags().String("doc", "", "document ID")
	historyShowCmd.Flags().Int("limit", 20, "maximum number of messages")
	historyClearCmd.Flags().String("doc", "", "document ID")
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyClearCmd)
}

// --- feedback ---

var feedbackCmd = &cobra.Command{
	Use:   "feedback <like|dislike>",
	Short: "Rate the last answer so future answers improve",
	Long: `Rate an answer so future answers improve.

A like promotes the answer into learned knowledge. A dislike with --info
records your suggested improvement as the preferred answer.

Examples:
  expertmind feedback like --doc 4f1c... --question "What is the refund policy?" --answer "30 days"
  expertmind feedback dislike --doc 4f1c... --question "What is the refund policy?" --answer "30 days" --info "It is 14 days for sale items"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		feedbackType := args[0]
		docID, _ := cmd.Flags().GetString("doc")
		question, _ := cmd.Flags().GetString("question")
		answer, _ := cmd.Flags().GetString("answer")
		info, _ := cmd.Flags().GetString("info")

		if docID == "" || question == "" {
			return fmt.Errorf("--doc and --question are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/feedback", map[string]string{
			"document_id":     docID,
			"question":        question,
			"answer":          answer,
			"feedback_type":   feedbackType,
			"additional_info": info,
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Feedback recorded")
		return nil
	},
}

func init() {
	feedbackCmd.Flags().String("doc", "", "document ID")
	feedbackCmd.Flags().String("question", "", "the question that was asked")
	feedbackCmd.Flags().String("answer", "", "the answer that was given")
	feedbackCmd.Flags().String("info", "", "suggested improvement (for dislikes)")
}

// --- note ---

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Attach a note to a question",
	Long: `Attach a note to a question. Notes become learned knowledge directly.

Examples:
  expertmind note --doc 4f1c... --question "What is the refund policy?" --type clarification --content "Refund policy only applies to EU customers"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		docID, _ := cmd.Flags().GetString("doc")
		question, _ := cmd.Flags().GetString("question")
		answer, _ := cmd.Flags().GetString("answer")
		noteType, _ := cmd.Flags().GetString("type")
		content, _ := cmd.Flags().GetString("content")

		if docID == "" || question == "" || content == "" {
			return fmt.Errorf("--doc, --question, and --content are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/note", map[string]string{
			"document_id": docID,
			"question":    question,
			"answer":      answer,
			"note_type":   noteType,
			"content":     content,
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Note recorded")
		return nil
	},
}

func init() {
	noteCmd.Flags().String("doc", "", "document ID")
	noteCmd.Flags().String("question", "", "the question the note applies to")
	noteCmd.Flags().String("answer", "", "the answer that was given, if any")
	noteCmd.Flags().String("type", "enhancement", "note type (enhancement or clarification)")
	noteCmd.Flags().String("content", "", "the note text")
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show feedback statistics for a document",
	RunE: func(cmd *cobra.Command, args []string) error {
		docID, _ := cmd.Flags().GetString("doc")
		if docID == "" {
			return fmt.Errorf("--doc is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/feedback/stats?document_id="+url.QueryEscape(docID))
		if err != nil {
			return err
		}

		var stats struct {
			Likes             int     `json:"total_likes"`
			Dislikes          int     `json:"total_dislikes"`
			LearnedEntries    int     `json:"learned_knowledge_count"`
			AverageConfidence float64 `json:"average_confidence"`
		}
		if err := decodeJSON(resp, &stats); err != nil {
			return err
		}

		printStatus("Likes", "%d", stats.Likes)
		printStatus("Dislikes", "%d", stats.Dislikes)
		printStatus("Learned entries", "%d", stats.LearnedEntries)
		printStatus("Avg confidence", "%.2f", stats.AverageConfidence)
		return nil
	},
}

func init() {
	statsCmd.Flags().String("doc", "", "document ID")
}

// --- learned ---

var learnedCmd = &cobra.Command{
	Use:   "learned",
	Short: "List learned knowledge for a document",
	RunE: func(cmd *cobra.Command, args []string) error {
		docID, _ := cmd.Flags().GetString("doc")
		if docID == "" {
			return fmt.Errorf("--doc is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/learned?document_id="+url.QueryEscape(docID))
		if err != nil {
			return err
		}

		var entries []struct {
			ID              string  `json:"id"`
			QuestionPattern string  `json:"question_pattern"`
			ImprovedAnswer  string  `json:"improved_answer"`
			ConfidenceScore float64 `json:"confidence_score"`
			UsageCount      int     `json:"usage_count"`
			UpdatedAt       string  `json:"updated_at"`
		}
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("Nothing learned for this document yet.")
			return nil
		}

		for i, e := range entries {
			fmt.Printf("\n%s [confidence: %.2f, used %d times]\n",
				colorize(colorBold, fmt.Sprintf("Entry %d", i+1)),
				e.ConfidenceScore,
				e.UsageCount,
			)
			fmt.Printf("  Q: %s\n", e.QuestionPattern)
			answer := e.ImprovedAnswer
			if len(answer) > 300 {
				answer = answer[:300] + "..."
			}
			fmt.Printf("  A: %s\n", answer)
		}
		return nil
	},
}

func init() {
	learnedCmd.Flags().String("doc", "", "document ID")
}
