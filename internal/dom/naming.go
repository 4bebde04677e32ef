package dom

import "fmt"

// DOM contract shared by lesson markup and the editor engine. The naming
// convention is the only binding between the two.
const (
	EditorClass          = "code-editor"
	ContainerClass       = "editor-container"
	ControlPanelClass    = "control-panel"
	StatusIndicatorClass = "status-indicator"
	StatusTextClass      = "status-text"
	ErrorMessageClass    = "error-message"
	HiddenClass          = "hidden"
	PreviewFrameClass    = "preview-frame"

	// Mount attributes carrying an explicit editor record.
	LanguageAttr = "data-language"
	SectionAttr  = "data-section"

	// Action button attributes.
	ActionAttr       = "data-action"
	ActionEditorAttr = "data-editor"
)

// LinesID is the id of the line-count node of editor id.
func LinesID(id string) string { return id + "-lines" }

// CharsID is the id of the character-count node of editor id.
func CharsID(id string) string { return id + "-chars" }

// PreviewID is the id of the preview mount of editor id.
func PreviewID(id string) string { return id + "-preview-content" }

// ErrorDisplayID is the id of the error surface of editor id.
func ErrorDisplayID(id string) string { return "error-display-" + id }

// ActionSelector selects the button bound to action for editor id.
func ActionSelector(action, id string) string {
	return fmt.Sprintf(`[%s=%q][%s=%q]`, ActionAttr, action, ActionEditorAttr, id)
}
