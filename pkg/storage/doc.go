// Package storage decides where downloaded files land and writes them safely.
//
// The storage package handles:
//   - Mapping a title chain to a folder under the output directory
//   - Picking a free filename, reusing the one stored for a retried item
//   - Writing through a temporary file that is renamed on success
//
// Filename resolution consults the disk, an optional NameIndex (the ledger)
// and names already handed out by the same Manager, so concurrent downloads
// into one folder never pick the same name.
//
// Usage:
//
//	manager, err := storage.NewManager("downloads", ledger)
//	if err != nil {
//	    return err
//	}
//
//	folder := manager.Folder(item.ParentTitle)
//	name, err := manager.Resolve(ctx, folder, "photo.jpg", "")
//	w, err := manager.Create(filepath.Join(folder, name))
//	defer w.Abort()
//	// stream into w, then
//	err = w.Commit()
package storage
