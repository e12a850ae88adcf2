// Package slides extracts text from PowerPoint (.pptx) decks.
//
// A deck is an Office Open XML zip archive. Open reads every
// ppt/slides/slideN.xml part in slide-number order and collects the slide
// title, the non-empty paragraphs of each text frame, and the rows of any
// tables. Deck.Text renders the result as a plain-text digest suitable for
// prompting.
package slides
