package chat

// Gemini Model IDs
//
// | Model Name                  | API Model ID              | Use Case                         |
// |-----------------------------|---------------------------|----------------------------------|
// | Gemini 2.5 Flash            | gemini-2.5-flash          | Describe step (image → prompt)   |
// | Gemini 2.5 Pro              | gemini-2.5-pro            | Slower, more detailed describe   |
// | Imagen 3                    | imagen-3.0-generate-002   | Render step (prompt → image)     |
// | Imagen 4                    | imagen-4.0-generate-001   | Render step, newer model         |
const (
	// ModelGemini25Flash is stable, balanced performance.
	ModelGemini25Flash = "gemini-2.5-flash"

	// ModelGemini25Pro is stable, for high-reasoning tasks.
	ModelGemini25Pro = "gemini-2.5-pro"

	// ModelImagen3 renders images from text prompts.
	ModelImagen3 = "imagen-3.0-generate-002"

	// ModelImagen4 is the newer Imagen text-to-image model.
	ModelImagen4 = "imagen-4.0-generate-001"
)

// DefaultTextModel describes the captured photo.
// Can be overridden via GEMINI_TEXT_MODEL or --text-model.
const DefaultTextModel = ModelGemini25Flash

// DefaultImageModel renders the generated prompt.
// Can be overridden via GEMINI_IMAGE_MODEL or --image-model.
const DefaultImageModel = ModelImagen3
