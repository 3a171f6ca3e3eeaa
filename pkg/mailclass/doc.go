// Package mailclass classifies email text into one of six categories:
// Promotions, Spam, Social Media Updates, Forum Updates, Code Verification
// and Work Updates.
//
// Quick start:
//
//	c, err := mailclass.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	p, _ := c.Classify(ctx, "Your verification code is 482915")
//	fmt.Println(p.Label, p.Confidence) // Code Verification 0.98
//
// The model is a fine-tuned BERT exported to ONNX. It is downloaded from the
// Hugging Face hub on first use and cached on disk; WithModel points at
// another repository or a local directory. Inference runs locally through
// ONNX Runtime, whose shared library must be installed.
//
// A Classifier is safe for concurrent use. Create once, reuse across
// requests.
package mailclass
