package errors

import "net/http"

// OK represents a successful operation.
var OK = Register(&Errno{
	Code: 0,
	HTTP: http.StatusOK,
	Msg:  "Success",
})

// Request errors: user-correctable input problems.
var (
	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = Register(&Errno{
		Code: MakeCode(ServiceKnowledged, CategoryRequest, 0),
		HTTP: http.StatusBadRequest,
		Msg:  "Bad request",
	})

	// ErrInvalidParam indicates an invalid parameter.
	ErrInvalidParam = Register(&Errno{
		Code: MakeCode(ServiceKnowledged, CategoryRequest, 1),
		HTTP: http.StatusBadRequest,
		Msg:  "Invalid parameter",
	})

	// ErrMissingParam indicates a missing required parameter.
	ErrMissingParam = Register(&Errno{
		Code: MakeCode(ServiceKnowledged, CategoryRequest, 2),
		HTTP: http.StatusBadRequest,
		Msg:  "Missing required parameter",
	})
)

// Not-found errors.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = Register(&Errno{
		Code: MakeCode(ServiceKnowledged, CategoryNotFound, 0),
		HTTP: http.StatusNotFound,
		Msg:  "Resource not found",
	})

	// ErrOrgNotFound indicates the organization slug resolved to nothing.
	ErrOrgNotFound = Register(&Errno{
		Code: MakeCode(ServiceKnowledged, CategoryNotFound, 1),
		HTTP: http.StatusNotFound,
		Msg:  "Organization not found",
	})

	// ErrDocumentNotFound indicates the document record does not exist.
	ErrDocumentNotFound = Register(&Errno{
		Code: MakeCode(ServiceKnowledged, CategoryNotFound, 2),
		HTTP: http.StatusNotFound,
		Msg:  "Document not found",
	})
)

// Internal and infrastructure errors.
var (
	// ErrInternal indicates an unexpected internal failure.
	ErrInternal = Register(&Errno{
		Code: MakeCode(ServiceKnowledged, CategoryInternal, 0),
		HTTP: http.StatusInternalServerError,
		Msg:  "Internal server error",
	})

	// ErrDatabase indicates a database operation failed.
	ErrDatabase = Register(&Errno{
		Code: MakeCode(ServiceKnowledged, CategoryDatabase, 0),
		HTTP: http.StatusInternalServerError,
		Msg:  "Database error",
	})
)

// Upstream errors: embedding, vector store, or model calls failed.
var (
	// ErrUpstream indicates an upstream dependency call failed.
	ErrUpstream = Register(&Errno{
		Code: MakeCode(ServiceKnowledged, CategoryUpstream, 0),
		HTTP: http.StatusBadGateway,
		Msg:  "Upstream dependency error",
	})

	// ErrEmbedding indicates the embedding provider call failed.
	ErrEmbedding = Register(&Errno{
		Code: MakeCode(ServiceKnowledged, CategoryUpstream, 1),
		HTTP: http.StatusBadGateway,
		Msg:  "Embedding provider error",
	})

	// ErrVectorStore indicates the vector store call failed.
	ErrVectorStore = Register(&Errno{
		Code: MakeCode(ServiceKnowledged, CategoryUpstream, 2),
		HTTP: http.StatusBadGateway,
		Msg:  "Vector store error",
	})

	// ErrGeneration indicates the language model call failed.
	ErrGeneration = Register(&Errno{
		Code: MakeCode(ServiceKnowledged, CategoryUpstream, 3),
		HTTP: http.StatusBadGateway,
		Msg:  "Generation error",
	})

	// ErrTimeout indicates an upstream call exceeded its deadline.
	ErrTimeout = Register(&Errno{
		Code: MakeCode(ServiceKnowledged, CategoryTimeout, 0),
		HTTP: http.StatusGatewayTimeout,
		Msg:  "Upstream timeout",
	})
)

// Pipeline errors: ingestion step failures, always recorded on the
// document record in addition to being returned to the caller.
var (
	// ErrPipeline indicates an ingestion step failed.
	ErrPipeline = Register(&Errno{
		Code: MakeCode(ServiceKnowledged, CategoryPipeline, 0),
		HTTP: http.StatusInternalServerError,
		Msg:  "Ingestion pipeline error",
	})

	// ErrNoContent indicates the source document yielded no sections.
	ErrNoContent = Register(&Errno{
		Code: MakeCode(ServiceKnowledged, CategoryPipeline, 1),
		HTTP: http.StatusBadRequest,
		Msg:  "No content found in document",
	})
)
