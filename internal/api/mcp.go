package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ruined/expertmind/internal/knowledge"
	"github.com/ruined/expertmind/internal/pipeline"
	"github.com/ruined/expertmind/internal/storage"
)

// Asker abstracts the answer pipeline for the MCP layer.
type Asker interface {
	Ask(ctx context.Context, documentID, question string) (pipeline.Answer, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     *storage.Store
	Knowledge *knowledge.Service
	Asker     Asker
}

// NewMCPServer creates an MCP server exposing the document Q&A loop as tools,
// so agent clients can ask questions and teach the knowledge base the same
// way the REST API does.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"expertmind",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("expertmind — local document Q&A that learns from feedback. Answers improve as likes, dislikes, and notes accumulate."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("ask_document",
			mcp.WithDescription("Ask a question about an uploaded document. Learned knowledge from earlier feedback takes precedence over raw document text."),
			mcp.WithString("document_id", mcp.Description("ID of the document to query"), mcp.Required()),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpAskDocument(deps),
	)

	s.AddTool(
		mcp.NewTool("submit_feedback",
			mcp.WithDescription("Rate an answer. A like reinforces it as learned knowledge; a dislike with an improvement replaces it."),
			mcp.WithString("document_id", mcp.Description("ID of the document the answer belongs to"), mcp.Required()),
			mcp.WithString("question", mcp.Description("The question that was asked"), mcp.Required()),
			mcp.WithString("answer", mcp.Description("The answer being rated"), mcp.Required()),
			mcp.WithString("feedback_type", mcp.Description("Either \"like\" or \"dislike\""), mcp.Required()),
			mcp.WithString("additional_info", mcp.Description("Extra context for a like, or the suggested improvement for a dislike")),
		),
		mcpSubmitFeedback(deps),
	)

	s.AddTool(
		mcp.NewTool("add_note",
			mcp.WithDescription("Attach an annotation to a question so future answers include it."),
			mcp.WithString("document_id", mcp.Description("ID of the document"), mcp.Required()),
			mcp.WithString("question", mcp.Description("The question the note applies to"), mcp.Required()),
			mcp.WithString("answer", mcp.Description("The answer the note refers to")),
			mcp.WithString("note_type", mcp.Description("Note kind: enhancement, clarification, correction, context, or example (default enhancement)")),
			mcp.WithString("content", mcp.Description("The note text"), mcp.Required()),
		),
		mcpAddNote(deps),
	)

	s.AddTool(
		mcp.NewTool("list_learned",
			mcp.WithDescription("List the learned knowledge entries of a document, highest confidence first."),
			mcp.WithString("document_id", mcp.Description("ID of the document"), mcp.Required()),
		),
		mcpListLearned(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"expertmind://documents",
			"Uploaded Documents",
			mcp.WithResourceDescription("All uploaded documents with their indexing status"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceDocuments(deps),
	)

	return s
}

func mcpAskDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		documentID, err := req.RequireString("document_id")
		if err != nil {
			return mcpError("document_id is required"), nil
		}
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		answer, err := deps.Asker.Ask(ctx, documentID, question)
		if err != nil {
			return mcpError(fmt.Sprintf("answering failed: %v", err)), nil
		}

		b, err := json.Marshal(answer)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSubmitFeedback(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		documentID, err := req.RequireString("document_id")
		if err != nil {
			return mcpError("document_id is required"), nil
		}
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		answer, err := req.RequireString("answer")
		if err != nil {
			return mcpError("answer is required"), nil
		}
		feedbackType, err := req.RequireString("feedback_type")
		if err != nil {
			return mcpError("feedback_type is required"), nil
		}
		additionalInfo := req.GetString("additional_info", "")

		if err := deps.Knowledge.RecordFeedback(ctx, documentID, question, answer, feedbackType, additionalInfo); err != nil {
			return mcpError(fmt.Sprintf("recording feedback failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Recorded %s for document %s", feedbackType, documentID)), nil
	}
}

func mcpAddNote(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		documentID, err := req.RequireString("document_id")
		if err != nil {
			return mcpError("document_id is required"), nil
		}
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		answer := req.GetString("answer", "")
		noteType := req.GetString("note_type", "")

		if err := deps.Knowledge.RecordNote(ctx, documentID, question, answer, knowledge.NoteKind(noteType), content); err != nil {
			return mcpError(fmt.Sprintf("recording note failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Note recorded for document %s", documentID)), nil
	}
}

func mcpListLearned(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		documentID, err := req.RequireString("document_id")
		if err != nil {
			return mcpError("document_id is required"), nil
		}

		entries, err := deps.Knowledge.Export(documentID)
		if err != nil {
			return mcpError(fmt.Sprintf("listing learned knowledge failed: %v", err)), nil
		}
		if len(entries) == 0 {
			return mcpText("[]"), nil
		}

		out := make([]learnedEntryResponse, len(entries))
		for i, e := range entries {
			out[i] = learnedEntryResponse{
				ID:              e.ID,
				QuestionPattern: e.QuestionPattern,
				ImprovedAnswer:  e.ImprovedAnswer,
				ConfidenceScore: e.ConfidenceScore,
				UsageCount:      e.UsageCount,
				UpdatedAt:       e.UpdatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal entries: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceDocuments(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		docs, err := deps.Store.ListDocuments()
		if err != nil {
			return nil, fmt.Errorf("listing documents: %w", err)
		}

		out := make([]documentResponse, len(docs))
		for i, d := range docs {
			out[i] = toDocumentResponse(d, 0)
		}

		b, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("marshalling documents: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
