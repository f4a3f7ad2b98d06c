// Package extract turns stored files into searchable text and classifies
// them into coarse content categories.
//
// Extraction never fails loudly: an unreadable, unsupported or corrupt file
// simply yields no text, and the file is indexed on its metadata alone.
package extract
