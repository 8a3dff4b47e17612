package tokenstore

// Nop is a Store for execution contexts without persistent storage.
type Nop struct{}

var _ Store = Nop{}

func (Nop) Read(Slot) (string, bool)    { return "", false }
func (Nop) Write(map[Slot]string) error { return nil }
func (Nop) Remove(...Slot) error        { return nil }
func (Nop) EraseAll()                   {}
