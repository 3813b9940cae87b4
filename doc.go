/*
Package mmdb reads MaxMind DB (.mmdb) files and dumps every network they
contain together with its data.

# File layout

A database file consists of three parts:

1. The search tree: node_count nodes of two records each. A record is
24, 28 or 32 bits wide (record_size); 28-bit records share the middle byte of
the node, the high nibble belonging to the left record.

2. Sixteen zero bytes, followed by the data section.

3. The metadata marker "\xAB\xCD\xEFMaxMind.com" and the metadata map. The
marker may also occur inside the data section, so the last occurrence is the
one that counts.

**Records.**
A record below node_count is the index of a child node, a record equal to
node_count marks an empty branch, and anything above is a data pointer:
the value lives at absolute offset record - node_count + search_tree_size.

**Values.**
Each value starts with a control byte: the type in the top 3 bits and the
payload size in the low 5. Type 0 means the real type is 7 + the next byte.
Sizes 29, 30 and 31 are followed by 1, 2 or 3 more size bytes. Pointers
(type 1) keep their own size encoding and are always resolved during
decoding, so callers only ever see the value they point to.

# Walking

Database.Dump visits the tree depth-first, the 0 branch before the 1 branch,
and passes each network that has data to a Sink. The prefix length of a
network is the depth at which its leaf was found: at most 32 for IPv4
databases and 128 for IPv6 ones.
*/
package mmdb
