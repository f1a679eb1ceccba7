package ringchat

// simulateCrash kills the node without any cleanup (for failover testing).
func (n *Node) simulateCrash() {
	n.cancel()
	_ = n.group.Wait()
}
